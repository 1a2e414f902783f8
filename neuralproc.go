// Package neuralproc trains a conditional neural process over images: a
// latent-variable model that reconstructs a full image from an arbitrary
// subset of observed pixels, trained with a masked reconstruction loss and
// an analytic KL between the full-context and masked-context posteriors.
package neuralproc

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gorgonia/neuralproc/encoding/imgrid"
	"github.com/gorgonia/neuralproc/mnist"
	"github.com/gorgonia/neuralproc/npnet"
	"github.com/pkg/errors"
)

// Session is the top level structure and the entry point of the API. It owns
// the network, its trainer and the run statistics.
type Session struct {
	Config
	Statistics

	net     *npnet.NP
	trainer *npnet.Trainer
	viz     *imgrid.Renderer
}

// New builds and initializes a session from a validated config.
func New(conf Config) (*Session, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid config %+v", conf)
	}

	net := npnet.New(conf.Net)
	if err := net.Init(); err != nil {
		return nil, errors.WithMessage(err, "initializing network")
	}
	trainer, err := npnet.NewTrainer(net, conf.LearnRate, conf.Seed)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Config:     conf,
		Statistics: makeStatistics(),
		net:        net,
		trainer:    trainer,
	}
	if conf.VizPath != "" {
		s.viz = imgrid.New(conf.Net.Height, conf.Net.Width)
	}
	return s, nil
}

// Net returns the session's network.
func (s *Session) Net() *npnet.NP { return s.net }

// Resume restores parameters from a checkpoint before training starts.
// Failure here is fatal to the run: training never begins on a
// partially-loaded model.
func (s *Session) Resume(path string) error {
	return s.net.LoadFrom(path)
}

// Run trains for the configured number of epochs over the dataset.
func (s *Session) Run(ds *mnist.Dataset) error {
	bs := s.Net().BatchSize
	batches := ds.Batches(bs)
	if batches == 0 {
		return errors.Errorf("dataset of %d images yields no batch of size %d", ds.Len(), bs)
	}
	r := rand.New(rand.NewSource(s.Seed))

	for epoch := 0; epoch < s.Config.Epochs; epoch++ {
		if err := ds.Shuffle(r); err != nil {
			return err
		}

		var epochLoss, epochRecon, epochKL float64
		var runningLoss float64
		lastLog := time.Now()

		for b := 0; b < batches; b++ {
			if b%s.LogEvery == 0 && b > 1 {
				window := float64(s.LogEvery)
				log.Printf("epoch %d | batch %d | mean running loss %.2f | %.2f batches/s",
					epoch, b, runningLoss/window, window/time.Since(lastLog).Seconds())
				lastLog = time.Now()
				runningLoss = 0
			}

			images, err := ds.Batch(b, bs)
			if err != nil {
				return err
			}
			loss, recon, kl, err := s.trainer.Step(images)
			if err != nil {
				return errors.WithMessagef(err, "epoch %d batch %d", epoch, b)
			}

			runningLoss += float64(loss)
			epochLoss += float64(loss)
			epochRecon += float64(recon)
			epochKL += float64(kl)

			if b == 0 && s.viz != nil {
				if err := s.dumpReconstruction(epoch, images.Data().([]float32)); err != nil {
					log.Printf("epoch %d | reconstruction dump failed: %v", epoch, err)
				}
			}
		}

		n := float64(batches)
		log.Printf("epoch %d | mean loss %.4f | reconstruction %.4f | kl %.4f",
			epoch, epochLoss/n, epochRecon/n, epochKL/n)
		s.record(epoch, float32(epochLoss/n), float32(epochRecon/n), float32(epochKL/n))

		if s.SaveEvery > 0 && epoch > 0 && epoch%s.SaveEvery == 0 {
			if err := s.Checkpoint(epoch); err != nil {
				return err
			}
		}
	}
	return s.Checkpoint(s.Config.Epochs)
}

// Checkpoint persists the three parameter sets, named by epoch.
func (s *Session) Checkpoint(epoch int) error {
	path := filepath.Join(s.ModelsPath, fmt.Sprintf("np_epoch_%d.ckpt", epoch))
	if err := s.net.SaveTo(path); err != nil {
		return err
	}
	log.Printf("saved model to %s", path)
	return nil
}

// Close releases the trainer's resources.
func (s *Session) Close() error { return s.trainer.Close() }

func (s *Session) dumpReconstruction(epoch int, truth []float32) error {
	recon := s.net.Reconstruction()
	if recon == nil {
		return errors.New("no reconstruction value available")
	}
	if err := os.MkdirAll(s.VizPath, 0755); err != nil {
		return err
	}

	n := s.Net().BatchSize
	if n > 8 {
		n = 8
	}
	path := filepath.Join(s.VizPath, fmt.Sprintf("epoch_%03d.png", epoch))
	caption := fmt.Sprintf("epoch %d: truth / reconstruction", epoch)
	return s.viz.WritePNG(path, truth, recon.Data().([]float32), n, caption)
}
