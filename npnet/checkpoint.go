package npnet

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Checkpoint component keys. A checkpoint is the three parameter sets keyed
// by component, each in graph construction order. Solver state (Adam
// moments) is not persisted; a resumed run restarts optimizer dynamics from
// scratch.
const (
	CkptEncoder = "encoder"
	CkptLatent  = "latent"
	CkptDecoder = "decoder"
)

func componentOf(name string) (string, error) {
	switch {
	case strings.HasPrefix(name, "Encoder"):
		return CkptEncoder, nil
	case strings.HasPrefix(name, "Latent"):
		return CkptLatent, nil
	case strings.HasPrefix(name, "Decoder"):
		return CkptDecoder, nil
	}
	return "", errors.Errorf("parameter %q belongs to no checkpoint component", name)
}

func (d *NP) checkpoint() (map[string][]*tensor.Dense, error) {
	ck := make(map[string][]*tensor.Dense)
	for _, n := range d.Model() {
		comp, err := componentOf(n.Name())
		if err != nil {
			return nil, err
		}
		t, ok := n.Value().(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("parameter %q holds a %T, not a dense tensor", n.Name(), n.Value())
		}
		ck[comp] = append(ck[comp], t)
	}
	return ck, nil
}

// restore loads a checkpoint map into the (already initialized) net. All
// components are validated before any parameter is touched, so a bad
// checkpoint never leaves a partially-loaded model.
func (d *NP) restore(ck map[string][]*tensor.Dense) error {
	model := d.Model()
	idx := make(map[string]int)

	// validate first
	for _, n := range model {
		comp, err := componentOf(n.Name())
		if err != nil {
			return err
		}
		params := ck[comp]
		i := idx[comp]
		if i >= len(params) {
			return errors.Errorf("checkpoint component %q has %d parameters, want more (at %q)", comp, len(params), n.Name())
		}
		if !params[i].Shape().Eq(n.Shape()) {
			return errors.Errorf("checkpoint parameter %d of %q has shape %v, want %v", i, comp, params[i].Shape(), n.Shape())
		}
		idx[comp]++
	}
	for comp, params := range ck {
		if idx[comp] != len(params) {
			return errors.Errorf("checkpoint component %q has %d parameters, want %d", comp, len(params), idx[comp])
		}
	}

	for comp := range idx {
		idx[comp] = 0
	}
	for _, n := range model {
		comp, _ := componentOf(n.Name())
		if err := G.Let(n, ck[comp][idx[comp]]); err != nil {
			return errors.Wrapf(err, "restoring %q", n.Name())
		}
		idx[comp]++
	}
	return nil
}

func (d *NP) GobEncode() ([]byte, error) {
	ck, err := d.checkpoint()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ck); err != nil {
		return nil, errors.Wrap(err, "encoding checkpoint")
	}
	return buf.Bytes(), nil
}

func (d *NP) GobDecode(p []byte) error {
	d.reset()
	if err := d.Init(); err != nil {
		return err
	}
	var ck map[string][]*tensor.Dense
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&ck); err != nil {
		return errors.Wrap(err, "decoding checkpoint")
	}
	return d.restore(ck)
}

// SaveTo writes the component-keyed checkpoint to path. The payload goes to
// a temporary file first and is renamed into place, so readers never see a
// partial checkpoint.
func (d *NP) SaveTo(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "creating %q", dir)
		}
	}

	p, err := d.GobEncode()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, p, 0644); err != nil {
		return errors.Wrapf(err, "writing %q", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "publishing %q", path)
	}
	return nil
}

// LoadFrom restores the net's parameters from a checkpoint written by
// SaveTo. The net must already be initialized with a matching Config.
func (d *NP) LoadFrom(path string) error {
	p, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading checkpoint %q", path)
	}
	var ck map[string][]*tensor.Dense
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&ck); err != nil {
		return errors.Wrapf(err, "decoding checkpoint %q", path)
	}
	return d.restore(ck)
}
