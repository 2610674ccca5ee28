// Package optimize runs the mesh size adaptation loop: build, analyze,
// adjust, until the quality target is met within the element budget or no
// further sizing adjustment can help.
package optimize

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/geomech/stratum/pkg/quality"
)

// Parameters drive one optimization run. MeshSize is the starting global
// element size; the loop adjusts it between MinSize and MaxSize.
type Parameters struct {
	MeshSize          float64 `yaml:"mesh_size" json:"mesh_size"`
	MinSize           float64 `yaml:"min_size" json:"min_size"`
	MaxSize           float64 `yaml:"max_size" json:"max_size"`
	CornerRefinement  float64 `yaml:"corner_refinement" json:"corner_refinement"`
	ContactRefinement float64 `yaml:"contact_refinement" json:"contact_refinement"`
	QualityTarget     float64 `yaml:"quality_target" json:"quality_target"`
	ElementCeiling    int     `yaml:"element_ceiling" json:"element_ceiling"`
	MaxAspectRatio    float64 `yaml:"max_aspect_ratio" json:"max_aspect_ratio"`
	MaxIterations     int     `yaml:"max_iterations" json:"max_iterations"`
}

// DefaultParameters returns the standard excavation meshing profile.
func DefaultParameters() Parameters {
	return Parameters{
		MeshSize:          2.0,
		MinSize:           0.5,
		MaxSize:           10.0,
		CornerRefinement:  0.5,
		ContactRefinement: 0.6,
		QualityTarget:     0.85,
		ElementCeiling:    4_000_000,
		MaxAspectRatio:    10.0,
		MaxIterations:     10,
	}
}

// Validate reports every parameter violation in one error.
func (p Parameters) Validate() error {
	var reasons []string

	if p.MinSize <= 0 {
		reasons = append(reasons, fmt.Sprintf("min_size %g is not positive", p.MinSize))
	}
	if p.MaxSize < p.MinSize {
		reasons = append(reasons, fmt.Sprintf("max_size %g is below min_size %g", p.MaxSize, p.MinSize))
	}
	if p.MeshSize < p.MinSize || p.MeshSize > p.MaxSize {
		reasons = append(reasons, fmt.Sprintf("mesh_size %g is outside [%g, %g]", p.MeshSize, p.MinSize, p.MaxSize))
	}
	if p.CornerRefinement <= 0 || p.CornerRefinement > 1 {
		reasons = append(reasons, fmt.Sprintf("corner_refinement %g is outside (0, 1]", p.CornerRefinement))
	}
	if p.ContactRefinement <= 0 || p.ContactRefinement > 1 {
		reasons = append(reasons, fmt.Sprintf("contact_refinement %g is outside (0, 1]", p.ContactRefinement))
	}
	if p.QualityTarget <= 0 || p.QualityTarget > 1 {
		reasons = append(reasons, fmt.Sprintf("quality_target %g is outside (0, 1]", p.QualityTarget))
	}
	if p.ElementCeiling <= 0 {
		reasons = append(reasons, fmt.Sprintf("element_ceiling %d is not positive", p.ElementCeiling))
	}
	if p.MaxAspectRatio <= 1 {
		reasons = append(reasons, fmt.Sprintf("max_aspect_ratio %g must exceed 1", p.MaxAspectRatio))
	}
	if p.MaxIterations < 1 {
		reasons = append(reasons, fmt.Sprintf("max_iterations %d must be at least 1", p.MaxIterations))
	}

	if len(reasons) > 0 {
		return fmt.Errorf("invalid optimization parameters: %s", strings.Join(reasons, "; "))
	}
	return nil
}

// LoadParameters reads YAML over the defaults, so a profile file only needs
// the fields it changes.
func LoadParameters(r io.Reader) (Parameters, error) {
	p := DefaultParameters()
	if err := yaml.NewDecoder(r).Decode(&p); err != nil {
		return Parameters{}, fmt.Errorf("decode parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// thresholds derives the analysis thresholds for the current mesh size.
func (p Parameters) thresholds(meshSize float64) quality.Thresholds {
	th := quality.DefaultThresholds()
	th.MaxAspectRatio = p.MaxAspectRatio
	th.MeshSize = meshSize
	return th
}
