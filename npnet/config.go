package npnet

// Config configures the neural process network.
type Config struct {
	Hidden int // width of the context encoder's hidden layers
	Latent int // latent dimensionality: encoder output, aggregate and z all share it
	Dec1   int // first decoder hidden width
	Dec2   int // second decoder hidden width

	BatchSize     int
	Width, Height int // image size; the query grid is Width*Height points

	FwdOnly bool // is this a fwd only graph?
}

func DefaultConf(h, w int) Config {
	return Config{
		Hidden: 128,
		Latent: 64,
		Dec1:   32,
		Dec2:   16,

		BatchSize: 32,
		Width:     w,
		Height:    h,
	}
}

func (conf Config) IsValid() bool {
	return conf.Hidden >= 1 &&
		conf.Latent >= 1 &&
		conf.Dec1 >= 1 &&
		conf.Dec2 >= 1 &&
		conf.BatchSize >= 1 &&
		conf.Width >= 1 &&
		conf.Height >= 1 &&
		conf.Width*conf.Height >= 2
}

// Points is the number of pixels (and query coordinates) per image.
func (conf Config) Points() int { return conf.Width * conf.Height }
