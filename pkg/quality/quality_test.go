package quality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/geomech/stratum/pkg/dwg"
	"github.com/geomech/stratum/pkg/extrude"
	"github.com/geomech/stratum/pkg/mesh"
)

func boxMesh(t *testing.T, w, d, h float64) mesh.Mesh {
	t.Helper()
	outline := []dwg.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: d}, {X: 0, Y: d}}
	m, err := extrude.Prism(outline, 0, h)
	require.NoError(t, err)
	return m
}

func singleTriangle(a, b, c [3]float64) mesh.Mesh {
	return mesh.Mesh{
		Vertices: []float32{
			float32(a[0]), float32(a[1]), float32(a[2]),
			float32(b[0]), float32(b[1]), float32(b[2]),
			float32(c[0]), float32(c[1]), float32(c[2]),
		},
		Faces: []uint32{0, 1, 2},
	}
}

func TestVolumeCube(t *testing.T) {
	m := boxMesh(t, 1, 1, 1)
	assert.InDelta(t, 1.0, Volume(m), 1e-6)
}

func TestVolumeIgnoresWinding(t *testing.T) {
	m := boxMesh(t, 2, 3, 4)
	flipped := m.Clone()
	for i := 0; i+2 < len(flipped.Faces); i += 3 {
		flipped.Faces[i+1], flipped.Faces[i+2] = flipped.Faces[i+2], flipped.Faces[i+1]
	}
	assert.InDelta(t, Volume(m), Volume(flipped), 1e-6)
	assert.InDelta(t, 24.0, Volume(m), 1e-4)
}

func TestSurfaceAreaCube(t *testing.T) {
	m := boxMesh(t, 1, 1, 1)
	assert.InDelta(t, 6.0, SurfaceArea(m), 1e-6)
}

func TestAnalyzeCleanMesh(t *testing.T) {
	m := boxMesh(t, 1, 1, 1)
	fb := Analyze(m, DefaultThresholds())

	assert.Equal(t, 1.0, fb.Score)
	assert.Zero(t, fb.DegenerateCount)
	assert.Empty(t, fb.Problems)
	assert.Equal(t, m.TriangleCount(), fb.ElementEstimate)
}

func TestAnalyzeFlagsSharpAndSliver(t *testing.T) {
	// One long, thin triangle. The 0.57 degree corner makes it sharp and
	// the aspect ratio of about 100 makes it a sliver.
	m := singleTriangle([3]float64{0, 0, 0}, [3]float64{10, 0, 0}, [3]float64{10, 0.1, 0})
	fb := Analyze(m, DefaultThresholds())

	assert.Equal(t, 1, fb.DegenerateCount)
	assert.Equal(t, 0.0, fb.Score)
	require.Len(t, fb.Problems, 2)
	kinds := []ProblemKind{fb.Problems[0].Kind, fb.Problems[1].Kind}
	assert.Contains(t, kinds, SharpAngle)
	assert.Contains(t, kinds, SliverTriangle)
	for _, p := range fb.Problems {
		assert.Equal(t, SeverityHigh, p.Severity)
		assert.Equal(t, 0, p.Triangle)
		assert.NotEmpty(t, p.Remedy)
	}
}

func TestAnalyzeOrdersBySeverity(t *testing.T) {
	// Triangle 0 is mildly sharp (12 degrees, low severity). Triangle 1 is
	// very sharp (2 degrees, high severity) and marginally slivered.
	mild := singleTriangle([3]float64{0, 0, 0}, [3]float64{10, 0, 0},
		[3]float64{10 * math.Cos(12*math.Pi/180), 10 * math.Sin(12*math.Pi/180), 0})
	severe := singleTriangle([3]float64{0, 0, 0}, [3]float64{10, 0, 0},
		[3]float64{10 * math.Cos(2*math.Pi/180), 10 * math.Sin(2*math.Pi/180), 0})
	m := mesh.Merge(mild, severe)

	fb := Analyze(m, DefaultThresholds())

	require.NotEmpty(t, fb.Problems)
	assert.Equal(t, SeverityHigh, fb.Problems[0].Severity)
	assert.Equal(t, 1, fb.Problems[0].Triangle)
	last := fb.Problems[len(fb.Problems)-1]
	assert.Equal(t, SeverityLow, last.Severity)
	assert.Equal(t, 0, last.Triangle)
	assert.Equal(t, 2, fb.DegenerateCount)
}

func TestAnalyzeDensityMismatchDoesNotAffectScore(t *testing.T) {
	// Well shaped triangle whose edges are far longer than the mesh size.
	m := singleTriangle([3]float64{0, 0, 0}, [3]float64{10, 0, 0}, [3]float64{5, 8, 0})
	th := DefaultThresholds()
	th.MeshSize = 1

	fb := Analyze(m, th)

	assert.Equal(t, 1.0, fb.Score)
	assert.Zero(t, fb.DegenerateCount)
	require.Len(t, fb.Problems, 1)
	assert.Equal(t, DensityMismatch, fb.Problems[0].Kind)
	assert.Equal(t, "grade mesh size transition", fb.Problems[0].Remedy)
}

func TestAnalyzeElementEstimate(t *testing.T) {
	m := boxMesh(t, 10, 10, 10)
	th := DefaultThresholds()
	th.MeshSize = 2

	fb := Analyze(m, th)

	assert.InDelta(t, 1000.0, fb.Volume, 1e-3)
	assert.Equal(t, 125, fb.ElementEstimate)
}

func TestAnalyzeEmptyMesh(t *testing.T) {
	fb := Analyze(mesh.Mesh{}, DefaultThresholds())
	assert.Equal(t, 0.0, fb.Score)
	assert.Zero(t, fb.ElementEstimate)
	assert.Empty(t, fb.Problems)
}

func TestScoreDropsWithDegenerateTriangle(t *testing.T) {
	clean := boxMesh(t, 5, 5, 5)
	before := Analyze(clean, DefaultThresholds())

	sliver := singleTriangle([3]float64{0, 0, 0}, [3]float64{10, 0, 0}, [3]float64{10, 0.1, 0})
	worse := Analyze(mesh.Merge(clean, sliver), DefaultThresholds())

	assert.Less(t, worse.Score, before.Score)
	assert.Equal(t, before.DegenerateCount+1, worse.DegenerateCount)
}

func TestAnalyzeIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.Float64Range(0.5, 40).Draw(t, "w")
		d := rapid.Float64Range(0.5, 40).Draw(t, "d")
		h := rapid.Float64Range(0.5, 40).Draw(t, "h")
		outline := []dwg.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: d}, {X: 0, Y: d}}
		m, err := extrude.Prism(outline, 0, h)
		require.NoError(t, err)

		th := DefaultThresholds()
		th.MeshSize = rapid.Float64Range(0.1, 5).Draw(t, "meshSize")

		first := Analyze(m, th)
		second := Analyze(m, th)
		assert.Equal(t, first, second)
	})
}
