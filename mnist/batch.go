package mnist

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// Shuffle permutes the dataset in place, images and labels in lockstep,
// through a native matrix view of the image tensor.
func (ds *Dataset) Shuffle(r *rand.Rand) error {
	mat, err := native.MatrixF32(ds.Images)
	if err != nil {
		return errors.Wrap(err, "shuffle failed")
	}

	tmp := make([]float32, ds.Images.Shape()[1])
	for i := range mat {
		j := r.Intn(i + 1)

		rowI := mat[i]
		rowJ := mat[j]
		copy(tmp, rowI)
		copy(rowI, rowJ)
		copy(rowJ, tmp)

		ds.Labels[i], ds.Labels[j] = ds.Labels[j], ds.Labels[i]
	}
	return nil
}

// Batches is how many full batches of the given size the dataset yields.
// The trailing remainder is dropped: the training graph has a fixed batch
// dimension.
func (ds *Dataset) Batches(batchSize int) int { return ds.Len() / batchSize }

// Batch materializes the i-th batch as its own (batchSize, points) tensor.
func (ds *Dataset) Batch(i, batchSize int) (*tensor.Dense, error) {
	start := i * batchSize
	end := start + batchSize
	if start < 0 || end > ds.Len() {
		return nil, errors.Errorf("batch %d of size %d out of range (%d images)", i, batchSize, ds.Len())
	}

	var s slicer
	view := s.Slice(ds.Images, sli(start, end))
	if s.err != nil {
		return nil, s.err
	}
	return view.Materialize().(*tensor.Dense), nil
}

type slicer struct {
	v   tensor.View
	err error
}

func (s *slicer) Slice(a *tensor.Dense, slices ...tensor.Slice) *tensor.Dense {
	if s.err != nil {
		return nil
	}
	if s.v, s.err = a.Slice(slices...); s.err != nil {
		s.err = errors.Wrapf(s.err, "Slicer failed") // get a stack trace
		return nil
	}
	return s.v.(*tensor.Dense)
}

type rs struct {
	start, end, step int
}

func (s rs) Start() int { return s.start }
func (s rs) End() int   { return s.end }
func (s rs) Step() int  { return s.step }

// sli creates a ranged slice. It takes an optional step param.
func sli(start, end int, opts ...int) rs {
	step := 1
	if len(opts) > 0 {
		step = opts[0]
	}
	return rs{
		start: start,
		end:   end,
		step:  step,
	}
}
