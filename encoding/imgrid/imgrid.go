// Package imgrid renders batches of ground-truth and reconstructed images
// side by side as PNG files, for qualitative inspection during training.
package imgrid

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi      = 144.0
	fontsize = 8.0
	scale    = 2 // pixel upscaling of each tile
	pad      = 4
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

// Renderer draws n-column grids of h×w tiles: truth on the top row,
// reconstruction below it, caption at the bottom.
type Renderer struct {
	H, W int
	font.Drawer

	face font.Face
	dy   int
}

func New(h, w int) *Renderer {
	face := truetype.NewFace(regular, &truetype.Options{
		Size:    fontsize,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
	return &Renderer{
		H: h,
		W: w,
		Drawer: font.Drawer{
			Src:  image.Black,
			Face: face,
		},
		face: face,
		dy:   face.Metrics().Height.Ceil(),
	}
}

// Render lays out n truth tiles over n reconstruction tiles. Both slices are
// flattened (n, h*w) pixel intensities in [0,1].
func (r *Renderer) Render(truth, recon []float32, n int, caption string) (image.Image, error) {
	p := r.H * r.W
	if len(truth) < n*p || len(recon) < n*p {
		return nil, errors.Errorf("need %d pixels per row, got %d truth and %d reconstruction", n*p, len(truth), len(recon))
	}

	tileW := r.W * scale
	tileH := r.H * scale
	width := n*tileW + (n+1)*pad
	height := 2*tileH + 3*pad + r.dy + pad

	im := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(im, im.Bounds(), image.White, image.Point{}, draw.Src)

	for i := 0; i < n; i++ {
		x0 := pad + i*(tileW+pad)
		r.tile(im, truth[i*p:(i+1)*p], x0, pad)
		r.tile(im, recon[i*p:(i+1)*p], x0, 2*pad+tileH)
	}

	r.Dst = im
	r.Dot = fixed.P(pad, height-pad)
	r.DrawString(caption)
	return im, nil
}

// tile draws one image with ink as dark-on-light, upscaled by nearest
// neighbour.
func (r *Renderer) tile(im *image.Gray, pixels []float32, x0, y0 int) {
	for row := 0; row < r.H; row++ {
		for col := 0; col < r.W; col++ {
			v := pixels[row*r.W+col]
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			g := color.Gray{Y: uint8((1 - v) * 255)}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					im.SetGray(x0+col*scale+dx, y0+row*scale+dy, g)
				}
			}
		}
	}
}

// WritePNG renders and writes the grid to path.
func (r *Renderer) WritePNG(path string, truth, recon []float32, n int, caption string) error {
	im, err := r.Render(truth, recon, n, caption)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %q", path)
	}
	defer f.Close()
	if err := png.Encode(f, im); err != nil {
		return errors.Wrapf(err, "encoding %q", path)
	}
	return nil
}
