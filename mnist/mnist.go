// Package mnist loads the MNIST dataset from its IDX-format files and serves
// it as shuffled, fixed-size tensor batches.
package mnist

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

const (
	imageMagic = 2051
	labelMagic = 2049

	binarizeAt = 0.5
)

// Dataset holds every image as one row of a (n, rows*cols) dense tensor,
// pixel values binarized to {0, 1}. Labels ride along but nothing in
// training consumes them.
type Dataset struct {
	Images     *tensor.Dense
	Labels     []uint8
	Rows, Cols int
}

// Load reads the train or test split from dir. Expects the standard
// uncompressed filenames (train-images-idx3-ubyte and friends); downloading
// them is the caller's problem.
func Load(dir string, train bool) (*Dataset, error) {
	imageFile := filepath.Join(dir, "train-images-idx3-ubyte")
	labelFile := filepath.Join(dir, "train-labels-idx1-ubyte")
	if !train {
		imageFile = filepath.Join(dir, "t10k-images-idx3-ubyte")
		labelFile = filepath.Join(dir, "t10k-labels-idx1-ubyte")
	}

	images, rows, cols, err := readImages(imageFile)
	if err != nil {
		return nil, errors.Wrapf(err, "loading images from %q", imageFile)
	}
	labels, err := readLabels(labelFile)
	if err != nil {
		return nil, errors.Wrapf(err, "loading labels from %q", labelFile)
	}
	n := images.Shape()[0]
	if n != len(labels) {
		return nil, errors.Errorf("%d images but %d labels", n, len(labels))
	}
	return &Dataset{Images: images, Labels: labels, Rows: rows, Cols: cols}, nil
}

// Len is the number of images.
func (ds *Dataset) Len() int { return ds.Images.Shape()[0] }

// readImages parses an IDX image file into a (n, rows*cols) tensor with
// values scaled to [0,1] and thresholded to {0,1}.
func readImages(path string) (imgs *tensor.Dense, rows, cols int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	var header [4]uint32
	for i := range header {
		if err := binary.Read(f, binary.BigEndian, &header[i]); err != nil {
			return nil, 0, 0, errors.Wrap(err, "reading IDX image header")
		}
	}
	if header[0] != imageMagic {
		return nil, 0, 0, errors.Errorf("bad image magic %d, want %d", header[0], imageMagic)
	}
	n, rows, cols := int(header[1]), int(header[2]), int(header[3])

	raw := make([]byte, n*rows*cols)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, 0, 0, errors.Wrap(err, "reading IDX pixel data")
	}

	backing := make([]float32, len(raw))
	for i, b := range raw {
		backing[i] = float32(b)
	}
	vecf32.Scale(backing, 1.0/255.0)
	for i, v := range backing {
		if v > binarizeAt {
			backing[i] = 1
		} else {
			backing[i] = 0
		}
	}
	return tensor.New(tensor.WithShape(n, rows*cols), tensor.WithBacking(backing)), rows, cols, nil
}

func readLabels(path string) ([]uint8, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var header [2]uint32
	for i := range header {
		if err := binary.Read(f, binary.BigEndian, &header[i]); err != nil {
			return nil, errors.Wrap(err, "reading IDX label header")
		}
	}
	if header[0] != labelMagic {
		return nil, errors.Errorf("bad label magic %d, want %d", header[0], labelMagic)
	}

	labels := make([]uint8, header[1])
	if _, err := io.ReadFull(f, labels); err != nil {
		return nil, errors.Wrap(err, "reading IDX label data")
	}
	return labels, nil
}
