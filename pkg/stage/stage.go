// Package stage splits an excavation volume into construction stages. A
// stage schedule lists cumulative target depths; the partitioner turns each
// depth interval into its own prism mesh so stages can be shown, measured
// and sequenced independently.
package stage

import (
	"fmt"
	"strings"

	"github.com/geomech/stratum/pkg/dwg"
	"github.com/geomech/stratum/pkg/extrude"
	"github.com/geomech/stratum/pkg/mesh"
)

// depthEps is the tolerance for comparing cumulative depths.
const depthEps = 1e-6

// Step is one entry in a stage schedule. Depth is the cumulative depth at
// the bottom of the stage, measured positive downward from grade.
type Step struct {
	ID    string  `yaml:"id,omitempty" json:"id,omitempty"`
	Name  string  `yaml:"name,omitempty" json:"name,omitempty"`
	Depth float64 `yaml:"depth" json:"depth"`
}

// Schedule is an ordered list of excavation steps.
type Schedule []Step

// ScheduleError reports every violation found in a schedule, not just the
// first, so a whole plan can be corrected in one pass.
type ScheduleError struct {
	Reasons []string
}

func (e *ScheduleError) Error() string {
	return "invalid stage schedule: " + strings.Join(e.Reasons, "; ")
}

// Validate checks the schedule against the total excavation depth: every
// depth positive, depths strictly increasing, and the final depth reaching
// the excavation bottom.
func (s Schedule) Validate(totalDepth float64) error {
	var reasons []string

	if len(s) == 0 {
		reasons = append(reasons, "schedule has no steps")
	}
	if totalDepth <= 0 {
		reasons = append(reasons, fmt.Sprintf("excavation depth %g is not positive", totalDepth))
	}

	prev := 0.0
	for i, step := range s {
		label := step.Name
		if label == "" {
			label = fmt.Sprintf("step %d", i+1)
		}
		if step.Depth <= 0 {
			reasons = append(reasons, fmt.Sprintf("%s: depth %g is not positive", label, step.Depth))
			continue
		}
		if step.Depth <= prev {
			reasons = append(reasons, fmt.Sprintf("%s: depth %g does not increase past %g", label, step.Depth, prev))
			continue
		}
		prev = step.Depth
	}

	if len(s) > 0 && totalDepth > 0 {
		last := s[len(s)-1].Depth
		if diff := last - totalDepth; diff > depthEps || diff < -depthEps {
			reasons = append(reasons, fmt.Sprintf("final depth %g does not reach excavation depth %g", last, totalDepth))
		}
	}

	if len(reasons) > 0 {
		return &ScheduleError{Reasons: reasons}
	}
	return nil
}

// Stage is one partitioned slice of the excavation.
type Stage struct {
	Step      Step      `json:"step"`
	DepthFrom float64   `json:"depth_from"`
	DepthTo   float64   `json:"depth_to"`
	Mesh      mesh.Mesh `json:"mesh"`
	Volume    float64   `json:"volume"`
}

// Thickness returns the vertical extent of the stage.
func (s Stage) Thickness() float64 {
	return s.DepthTo - s.DepthFrom
}

// Partitioner slices an excavation outline into stage meshes. SafetyFactor
// scales reported stage volumes for haul estimates; it never changes the
// geometry.
type Partitioner struct {
	SafetyFactor float64
}

// NewPartitioner returns a partitioner with the neutral safety factor.
func NewPartitioner() *Partitioner {
	return &Partitioner{SafetyFactor: 1.0}
}

// Partition validates the schedule and cuts the excavation into one prism
// per step. Stage i spans exactly the depth interval between the previous
// step's depth and its own, so stacked stage meshes reproduce the full
// excavation. Steps without a name or ID get positional defaults.
func (p *Partitioner) Partition(outline []dwg.Point, totalDepth float64, sched Schedule) ([]Stage, error) {
	if err := sched.Validate(totalDepth); err != nil {
		return nil, err
	}
	if len(outline) < 3 {
		return nil, fmt.Errorf("excavation outline needs at least 3 points, got %d", len(outline))
	}

	area := dwg.PolylineData{Points: outline, Closed: true}.Area()
	if area <= 0 {
		return nil, fmt.Errorf("excavation outline has no area")
	}

	factor := p.SafetyFactor
	if factor <= 0 {
		factor = 1.0
	}

	stages := make([]Stage, 0, len(sched))
	prev := 0.0
	for i, step := range sched {
		if step.ID == "" {
			step.ID = fmt.Sprintf("S%d", i+1)
		}
		if step.Name == "" {
			step.Name = fmt.Sprintf("stage %d", i+1)
		}

		thickness := step.Depth - prev
		m, err := extrude.Prism(outline, prev, thickness)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", step.ID, err)
		}

		stages = append(stages, Stage{
			Step:      step,
			DepthFrom: prev,
			DepthTo:   step.Depth,
			Mesh:      m,
			Volume:    area * thickness * factor,
		})
		prev = step.Depth
	}

	return stages, nil
}

// Merge flattens partitioned stages back into a single mesh.
func Merge(stages []Stage) mesh.Mesh {
	meshes := make([]mesh.Mesh, len(stages))
	for i, s := range stages {
		meshes[i] = s.Mesh
	}
	return mesh.Merge(meshes...)
}
