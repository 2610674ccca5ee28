// Package quality computes mesh quality metrics and the feedback that
// drives mesh size adaptation. All functions are pure: analyzing the same
// mesh twice yields identical feedback.
package quality

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/geomech/stratum/pkg/mesh"
)

// Volume returns the volume enclosed by a closed, outward-wound mesh,
// integrated as signed tetrahedra against the origin. The absolute value is
// taken at the end, so a consistently inward-wound mesh yields the same
// magnitude.
func Volume(m mesh.Mesh) float64 {
	var sum float64
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		sum += r3.Dot(tri[0], r3.Cross(tri[1], tri[2]))
	}
	return math.Abs(sum / 6)
}

// SurfaceArea returns the total area of all triangles.
func SurfaceArea(m mesh.Mesh) float64 {
	var sum float64
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		sum += triangleArea(tri)
	}
	return sum
}

func triangleArea(tri [3]r3.Vec) float64 {
	c := r3.Cross(r3.Sub(tri[1], tri[0]), r3.Sub(tri[2], tri[0]))
	return r3.Norm(c) / 2
}

// Thresholds configure what Analyze flags.
type Thresholds struct {
	SharpAngleDeg  float64 `yaml:"sharp_angle_deg" json:"sharp_angle_deg"`   // corner angle below this is sharp
	MaxAspectRatio float64 `yaml:"max_aspect_ratio" json:"max_aspect_ratio"` // longest edge over its altitude
	MeshSize       float64 `yaml:"mesh_size" json:"mesh_size"`               // 0 disables density checks and the element estimate
}

// DefaultThresholds returns the standard excavation analysis profile.
func DefaultThresholds() Thresholds {
	return Thresholds{SharpAngleDeg: 15, MaxAspectRatio: 10}
}

// Severity grades a problem area.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ProblemKind enumerates the defect classes Analyze detects.
type ProblemKind int

const (
	SharpAngle      ProblemKind = iota // corner angle below threshold
	SliverTriangle                     // aspect ratio above threshold
	DensityMismatch                    // edge length far from the target mesh size
)

func (k ProblemKind) String() string {
	switch k {
	case SharpAngle:
		return "sharp-angle"
	case SliverTriangle:
		return "sliver-triangle"
	case DensityMismatch:
		return "density-mismatch"
	default:
		return "unknown"
	}
}

// ProblemArea is one flagged triangle.
type ProblemArea struct {
	Kind     ProblemKind `json:"kind"`
	Severity Severity    `json:"severity"`
	Triangle int         `json:"triangle"` // triangle index in the mesh
	Value    float64     `json:"value"`    // measured metric
	Limit    float64     `json:"limit"`    // threshold it violated
	Remedy   string      `json:"remedy"`
}

// Feedback is the analysis result.
type Feedback struct {
	Volume          float64       `json:"volume"`
	SurfaceArea     float64       `json:"surface_area"`
	Score           float64       `json:"score"` // composite quality in [0,1]
	ElementEstimate int           `json:"element_estimate"`
	DegenerateCount int           `json:"degenerate_count"` // triangles that are sharp or sliver
	Problems        []ProblemArea `json:"problems,omitempty"`
}

// severityFor grades by how far the measurement exceeds its limit.
func severityFor(factor float64) Severity {
	switch {
	case factor >= 3:
		return SeverityHigh
	case factor >= 1.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Analyze inspects every triangle and produces metrics, flagged problem
// areas ordered by severity, and the volumetric element estimate used for
// budget checks. The composite score is 1 minus the degenerate triangle
// fraction: each additional sharp or sliver triangle strictly lowers it.
func Analyze(m mesh.Mesh, th Thresholds) Feedback {
	fb := Feedback{
		Volume:      Volume(m),
		SurfaceArea: SurfaceArea(m),
	}

	triCount := m.TriangleCount()
	if triCount == 0 {
		return fb
	}

	for t := 0; t < triCount; t++ {
		tri := m.Triangle(t)
		area := triangleArea(tri)
		longest, shortest := edgeRange(tri)

		degenerate := false

		// Sharp corner angle.
		if th.SharpAngleDeg > 0 {
			minAngle := minCornerAngle(tri, area)
			if minAngle < th.SharpAngleDeg {
				degenerate = true
				factor := math.Inf(1)
				if minAngle > 0 {
					factor = th.SharpAngleDeg / minAngle
				}
				fb.Problems = append(fb.Problems, ProblemArea{
					Kind:     SharpAngle,
					Severity: severityFor(factor),
					Triangle: t,
					Value:    minAngle,
					Limit:    th.SharpAngleDeg,
					Remedy:   "refine corner mesh",
				})
			}
		}

		// Sliver shape.
		if th.MaxAspectRatio > 0 {
			aspect := 1e9
			if area > 1e-12 {
				aspect = longest * longest / (2 * area)
			}
			if aspect > th.MaxAspectRatio {
				degenerate = true
				fb.Problems = append(fb.Problems, ProblemArea{
					Kind:     SliverTriangle,
					Severity: severityFor(aspect / th.MaxAspectRatio),
					Triangle: t,
					Value:    aspect,
					Limit:    th.MaxAspectRatio,
					Remedy:   "collapse sliver edge",
				})
			}
		}

		// Local density against the target element size. Not a shape
		// defect, so it does not count toward the degenerate fraction.
		if th.MeshSize > 0 {
			if longest > 3*th.MeshSize {
				fb.Problems = append(fb.Problems, ProblemArea{
					Kind:     DensityMismatch,
					Severity: severityFor(longest / (3 * th.MeshSize)),
					Triangle: t,
					Value:    longest,
					Limit:    3 * th.MeshSize,
					Remedy:   "grade mesh size transition",
				})
			} else if shortest > 0 && shortest < th.MeshSize/3 {
				fb.Problems = append(fb.Problems, ProblemArea{
					Kind:     DensityMismatch,
					Severity: severityFor(th.MeshSize / (3 * shortest)),
					Triangle: t,
					Value:    shortest,
					Limit:    th.MeshSize / 3,
					Remedy:   "grade mesh size transition",
				})
			}
		}

		if degenerate {
			fb.DegenerateCount++
		}
	}

	fb.Score = 1 - float64(fb.DegenerateCount)/float64(triCount)
	if fb.Score < 0 {
		fb.Score = 0
	}

	if th.MeshSize > 0 {
		fb.ElementEstimate = int(math.Ceil(fb.Volume / (th.MeshSize * th.MeshSize * th.MeshSize)))
	} else {
		fb.ElementEstimate = triCount
	}

	sort.SliceStable(fb.Problems, func(i, j int) bool {
		if fb.Problems[i].Severity != fb.Problems[j].Severity {
			return fb.Problems[i].Severity > fb.Problems[j].Severity
		}
		return fb.Problems[i].Triangle < fb.Problems[j].Triangle
	})

	return fb
}

// edgeRange returns the longest and shortest edge lengths of a triangle.
func edgeRange(tri [3]r3.Vec) (longest, shortest float64) {
	e0 := r3.Norm(r3.Sub(tri[1], tri[0]))
	e1 := r3.Norm(r3.Sub(tri[2], tri[1]))
	e2 := r3.Norm(r3.Sub(tri[0], tri[2]))
	longest = math.Max(e0, math.Max(e1, e2))
	shortest = math.Min(e0, math.Min(e1, e2))
	return longest, shortest
}

// minCornerAngle returns the smallest interior angle in degrees. Zero-area
// triangles with distinct vertices report 0.
func minCornerAngle(tri [3]r3.Vec, area float64) float64 {
	if area < 1e-12 {
		return 0
	}
	min := 180.0
	for i := 0; i < 3; i++ {
		a := tri[i]
		b := tri[(i+1)%3]
		c := tri[(i+2)%3]
		u := r3.Sub(b, a)
		v := r3.Sub(c, a)
		lu, lv := r3.Norm(u), r3.Norm(v)
		if lu < 1e-12 || lv < 1e-12 {
			return 0
		}
		cos := r3.Dot(u, v) / (lu * lv)
		cos = math.Max(-1, math.Min(1, cos))
		deg := math.Acos(cos) * 180 / math.Pi
		if deg < min {
			min = deg
		}
	}
	return min
}
