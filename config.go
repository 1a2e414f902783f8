package neuralproc

import "github.com/gorgonia/neuralproc/npnet"

// Config is one training run's configuration.
type Config struct {
	Net npnet.Config

	LearnRate float64
	Epochs    int

	SaveEvery int // epochs between checkpoints; 0 disables periodic saves
	LogEvery  int // batches between progress lines

	ModelsPath string // checkpoint directory
	VizPath    string // reconstruction dump directory; empty disables
	Seed       int64
}

func DefaultConfig(h, w int) Config {
	return Config{
		Net:        npnet.DefaultConf(h, w),
		LearnRate:  1e-3,
		Epochs:     10,
		SaveEvery:  5,
		LogEvery:   100,
		ModelsPath: "models",
		Seed:       1337,
	}
}

func (conf Config) IsValid() bool {
	return conf.Net.IsValid() &&
		conf.LearnRate > 0 &&
		conf.Epochs >= 1 &&
		conf.SaveEvery >= 0 &&
		conf.LogEvery >= 1
}
