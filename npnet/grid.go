package npnet

import "gorgonia.org/tensor"

// Grid returns the query coordinates of an h×w image as a (h*w, 2) matrix.
// Point k covers pixel (row k/w, col k%w) and holds (col/(w-1), row/(h-1)),
// both in [0,1]. The layout is row-major, matching how images are flattened,
// so the k-th context value, the k-th mask entry and the k-th decoder query
// all refer to the same pixel.
func Grid(h, w int) *tensor.Dense {
	dx := float32(w - 1)
	dy := float32(h - 1)
	if w == 1 {
		dx = 1
	}
	if h == 1 {
		dy = 1
	}

	backing := make([]float32, h*w*2)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			k := (r*w + c) * 2
			backing[k] = float32(c) / dx
			backing[k+1] = float32(r) / dy
		}
	}
	return tensor.New(tensor.WithShape(h*w, 2), tensor.WithBacking(backing))
}

// repeatGrid tiles the (p, 2) grid n times into a (n, p, 2) tensor, one copy
// of the query coordinates per image in the batch.
func repeatGrid(grid *tensor.Dense, n int) *tensor.Dense {
	data := grid.Data().([]float32)
	p := grid.Shape()[0]
	backing := make([]float32, n*len(data))
	for i := 0; i < n; i++ {
		copy(backing[i*len(data):], data)
	}
	return tensor.New(tensor.WithShape(n, p, 2), tensor.WithBacking(backing))
}
