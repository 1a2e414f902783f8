// nptrain trains a conditional neural process on MNIST.
//
// The dataset directory must hold the standard uncompressed IDX files
// (train-images-idx3-ubyte, train-labels-idx1-ubyte).
package main

import (
	"flag"
	"log"
	"os"

	"github.com/gorgonia/neuralproc"
	"github.com/gorgonia/neuralproc/mnist"
)

func main() {
	var (
		dataPath   = flag.String("data", "data", "directory holding the MNIST IDX files")
		modelsPath = flag.String("models", "models", "checkpoint output directory")
		lr         = flag.Float64("lr", 1e-3, "learning rate")
		epochs     = flag.Int("epochs", 10, "number of epochs")
		bsize      = flag.Int("bsize", 32, "batch size")
		resume     = flag.String("resume", "", "checkpoint to resume from")
		saveEvery  = flag.Int("save-every", 5, "epochs between checkpoints (0 disables periodic saves)")
		logEvery   = flag.Int("log-every", 100, "batches between progress lines")
		vizPath    = flag.String("viz", "", "directory for per-epoch reconstruction PNGs (empty disables)")
		statsPath  = flag.String("stats", "", "CSV file for per-epoch losses (empty disables)")
		seed       = flag.Int64("seed", 1337, "seed for mask and noise sampling")
		dumpGraph  = flag.String("dumpgraph", "", "write the pipeline as graphviz dot to this file")
	)
	flag.Parse()

	conf := neuralproc.DefaultConfig(28, 28)
	conf.Net.BatchSize = *bsize
	conf.LearnRate = *lr
	conf.Epochs = *epochs
	conf.SaveEvery = *saveEvery
	conf.LogEvery = *logEvery
	conf.ModelsPath = *modelsPath
	conf.VizPath = *vizPath
	conf.Seed = *seed

	session, err := neuralproc.New(conf)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer session.Close()

	if *resume != "" {
		if err := session.Resume(*resume); err != nil {
			log.Fatalf("cannot resume from %s: %+v", *resume, err)
		}
		log.Printf("resumed from %s", *resume)
	}

	if *dumpGraph != "" {
		dot, err := session.Net().ToDot()
		if err != nil {
			log.Fatalf("%+v", err)
		}
		if err := os.WriteFile(*dumpGraph, []byte(dot), 0644); err != nil {
			log.Fatalf("%+v", err)
		}
	}

	ds, err := mnist.Load(*dataPath, true)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	log.Printf("loaded %d images (%dx%d)", ds.Len(), ds.Rows, ds.Cols)

	if err := session.Run(ds); err != nil {
		log.Fatalf("%+v", err)
	}

	if *statsPath != "" {
		if err := session.Statistics.Dump(*statsPath); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}
