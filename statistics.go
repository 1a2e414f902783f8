package neuralproc

import (
	"encoding/csv"
	"os"
	"strconv"
)

// Statistics keeps the mean per-epoch losses of a run.
type Statistics struct {
	Epochs []int
	Total  []float32
	Recon  []float32
	KL     []float32
}

func makeStatistics() Statistics {
	return Statistics{
		Epochs: make([]int, 0, 64),
		Total:  make([]float32, 0, 64),
		Recon:  make([]float32, 0, 64),
		KL:     make([]float32, 0, 64),
	}
}

func (s *Statistics) record(epoch int, total, recon, kl float32) {
	s.Epochs = append(s.Epochs, epoch)
	s.Total = append(s.Total, total)
	s.Recon = append(s.Recon, recon)
	s.KL = append(s.KL, kl)
}

// Dump writes the per-epoch losses as CSV.
func (s *Statistics) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"epoch", "total", "reconstruction", "kl"}); err != nil {
		return err
	}
	for i, epoch := range s.Epochs {
		record := []string{
			strconv.Itoa(epoch),
			strconv.FormatFloat(float64(s.Total[i]), 'f', 6, 32),
			strconv.FormatFloat(float64(s.Recon[i]), 'f', 6, 32),
			strconv.FormatFloat(float64(s.KL[i]), 'f', 6, 32),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
