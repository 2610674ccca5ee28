package solid

import (
	"context"

	"github.com/geomech/stratum/pkg/mesh"
)

// ValidationProfile bounds what an exact boolean backend may return.
type ValidationProfile struct {
	MaxElements      int     `yaml:"max_elements" json:"max_elements"`
	QualityThreshold float64 `yaml:"quality_threshold" json:"quality_threshold"`
	MeshSizeMin      float64 `yaml:"mesh_size_min" json:"mesh_size_min"`
	MeshSizeMax      float64 `yaml:"mesh_size_max" json:"mesh_size_max"`
}

// DefaultProfile matches the standard excavation analysis budget.
func DefaultProfile() ValidationProfile {
	return ValidationProfile{
		MaxElements:      4_000_000,
		QualityThreshold: 0.85,
		MeshSizeMin:      0.5,
		MeshSizeMax:      10,
	}
}

// BooleanRequest asks an exact backend for a true boolean of the soil and
// excavation meshes.
type BooleanRequest struct {
	Soil       mesh.Mesh         `json:"soil"`
	Excavation mesh.Mesh         `json:"excavation"`
	Op         Operation         `json:"op"`
	Tolerance  float64           `json:"tolerance"`
	Profile    ValidationProfile `json:"profile"`
}

// BooleanResult is the backend's answer. Exact reports whether the mesh is
// a true boolean or the backend itself fell back to an approximation.
type BooleanResult struct {
	Mesh     mesh.Mesh `json:"mesh"`
	Exact    bool      `json:"exact"`
	Warnings []string  `json:"warnings,omitempty"`
}

// ExactComposer is the service boundary for exact boolean backends. The
// pipeline treats a failure as non-fatal and falls back to the approximate
// composition.
type ExactComposer interface {
	Compose(ctx context.Context, req BooleanRequest) (BooleanResult, error)
}
