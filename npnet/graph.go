package npnet

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// ToDot renders the pipeline as a graphviz document: one box per component
// stage with its parameter shapes, edges following the dataflow from context
// to loss. Meant for eyeballing the wiring, not for round-tripping.
func (d *NP) ToDot() (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("NP"); err != nil {
		return "", err
	}
	g.SetDir(true)

	stages := []struct {
		name, next string
	}{
		{"Context", "Encoder"},
		{"Encoder", "Aggregate"},
		{"Aggregate", "Latent"},
		{"Latent", "Sample"},
		{"Sample", "Decoder"},
		{"Decoder", "Loss"},
		{"Loss", ""},
	}

	params := make(map[string]string)
	for _, n := range d.Model() {
		comp, err := componentOf(n.Name())
		if err != nil {
			return "", err
		}
		var stage string
		switch comp {
		case CkptEncoder:
			stage = "Encoder"
		case CkptLatent:
			stage = "Latent"
		case CkptDecoder:
			stage = "Decoder"
		}
		params[stage] += fmt.Sprintf("%s %v\\l", n.Name(), n.Shape())
	}

	for _, s := range stages {
		label := s.name
		if ps, ok := params[s.name]; ok {
			label = fmt.Sprintf("%s\\n%s", s.name, ps)
		}
		attrs := map[string]string{
			"fontname": "\"Monaco\"",
			"shape":    "box",
			"label":    fmt.Sprintf("\"%s\"", label),
		}
		if err := g.AddNode("NP", s.name, attrs); err != nil {
			return "", err
		}
	}
	for _, s := range stages {
		if s.next == "" {
			continue
		}
		if err := g.AddEdge(s.name, s.next, true, nil); err != nil {
			return "", err
		}
	}
	// the masked branch feeds the KL term directly
	if err := g.AddEdge("Latent", "Loss", true, map[string]string{"style": "dashed"}); err != nil {
		return "", err
	}
	return g.String(), nil
}
