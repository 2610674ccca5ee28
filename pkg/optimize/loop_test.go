package optimize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomech/stratum/pkg/dwg"
	"github.com/geomech/stratum/pkg/extrude"
	"github.com/geomech/stratum/pkg/mesh"
	"github.com/geomech/stratum/pkg/solid"
)

func boxMesh(t *testing.T, w, d, h float64) mesh.Mesh {
	t.Helper()
	outline := []dwg.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: d}, {X: 0, Y: d}}
	m, err := extrude.Prism(outline, 0, h)
	require.NoError(t, err)
	return m
}

// withSliver appends one degenerate triangle so the quality score drops
// below 1 without changing the enclosed volume.
func withSliver(m mesh.Mesh) mesh.Mesh {
	sliver := mesh.Mesh{
		Vertices: []float32{0, 0, 0, 10, 0, 0, 10, 0.1, 0},
		Faces:    []uint32{0, 1, 2},
	}
	return mesh.Merge(m, sliver)
}

func staticBuild(m mesh.Mesh) BuildFunc {
	return func(ctx context.Context, p Parameters) (solid.Model, []string, error) {
		return solid.FromMesh(m, solid.OpDifference), nil, nil
	}
}

func TestRunConvergesOnCleanModel(t *testing.T) {
	loop := New(staticBuild(boxMesh(t, 10, 10, 10)))

	res, err := loop.Run(context.Background(), DefaultParameters())
	require.NoError(t, err)

	assert.Equal(t, StateConverged, res.State)
	assert.True(t, res.Success)
	require.Len(t, res.Iterations, 1)
	assert.Equal(t, 1.0, res.OriginalQuality)
	assert.Equal(t, 1.0, res.OptimizedQuality)
	assert.Equal(t, 125, res.ElementsBefore)
	assert.Equal(t, 125, res.ElementsAfter)
	assert.Equal(t, res.Iterations[0].MeshSize, res.Iterations[0].Adjusted)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	assert.InDelta(t, 1000.0, res.Best.Metrics.Volume, 1e-3)
}

func TestRunClampsMeshSizeAdjustment(t *testing.T) {
	// 3000 volume units at mesh size 2 estimates 375 elements, half the
	// 750-element target, so the raw adjustment is 2/sqrt(2) = 1.414. The
	// min size clamp lifts it to 1.5.
	loop := New(staticBuild(withSliver(boxMesh(t, 30, 10, 10))))

	p := DefaultParameters()
	p.MeshSize = 2.0
	p.MinSize = 1.5
	p.MaxSize = 2.0
	p.QualityTarget = 0.95
	p.ElementCeiling = 1000
	p.MaxIterations = 1

	res, err := loop.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, StateCapped, res.State)
	assert.False(t, res.Success)
	require.Len(t, res.Iterations, 1)
	assert.Equal(t, 2.0, res.Iterations[0].MeshSize)
	assert.Equal(t, 375, res.Iterations[0].Elements)
	assert.InDelta(t, 1.5, res.Iterations[0].Adjusted, 1e-9)
	assert.InDelta(t, 12.0/13.0, res.OriginalQuality, 1e-9)
}

func TestRunFailsWhenBudgetUnreachable(t *testing.T) {
	// 8000 volume units estimate 125 elements even at the coarsest
	// allowed size, above the 100-element ceiling.
	loop := New(staticBuild(boxMesh(t, 20, 20, 20)))

	p := DefaultParameters()
	p.MeshSize = 4.0
	p.MinSize = 1.0
	p.MaxSize = 4.0
	p.ElementCeiling = 100

	res, err := loop.Run(context.Background(), p)
	require.Error(t, err)

	var budget *BudgetError
	require.True(t, errors.As(err, &budget))
	assert.Equal(t, 125, budget.Elements)
	assert.Equal(t, 100, budget.Ceiling)
	assert.Equal(t, 4.0, budget.MeshSize)

	assert.Equal(t, StateFailed, res.State)
	assert.False(t, res.Success)
	require.Len(t, res.Iterations, 1)
}

func TestRunCapsWhenPinnedAtMinSize(t *testing.T) {
	// The quality target is out of reach by sizing alone. The loop
	// refines to the minimum size, sees no further change, and caps.
	loop := New(staticBuild(withSliver(boxMesh(t, 10, 10, 10))))

	p := DefaultParameters()
	p.QualityTarget = 0.99

	res, err := loop.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, StateCapped, res.State)
	assert.False(t, res.Success)
	require.Len(t, res.Iterations, 2)
	assert.InDelta(t, p.MinSize, res.Iterations[0].Adjusted, 1e-9)
	assert.InDelta(t, p.MinSize, res.Iterations[1].MeshSize, 1e-9)
	assert.Equal(t, res.Iterations[1].MeshSize, res.Iterations[1].Adjusted)
	assert.InDelta(t, 12.0/13.0, res.OptimizedQuality, 1e-9)

	assert.Contains(t, res.Recommendations, "collapse sliver edge")
	seen := map[string]bool{}
	for _, r := range res.Recommendations {
		assert.False(t, seen[r], "duplicate recommendation %q", r)
		seen[r] = true
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	clean := boxMesh(t, 10, 10, 10)

	build := func(ctx context.Context, p Parameters) (solid.Model, []string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return solid.FromMesh(clean, solid.OpDifference), nil, nil
	}

	loop := New(build)

	var (
		firstRes Result
		firstErr error
	)
	done := make(chan struct{})
	go func() {
		firstRes, firstErr = loop.Run(context.Background(), DefaultParameters())
		close(done)
	}()

	<-started
	assert.Equal(t, StateIterating, loop.State())

	_, err := loop.Run(context.Background(), DefaultParameters())
	assert.ErrorIs(t, err, ErrRunActive)

	close(release)
	<-done
	require.NoError(t, firstErr)
	assert.True(t, firstRes.Success)
	assert.Equal(t, StateIdle, loop.State())
}

func TestRunPropagatesBuildError(t *testing.T) {
	boom := errors.New("no usable outline")
	loop := New(func(ctx context.Context, p Parameters) (solid.Model, []string, error) {
		return solid.Model{}, nil, boom
	})

	res, err := loop.Run(context.Background(), DefaultParameters())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "build")
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, res.Iterations)
}

func TestRunHonorsCanceledContext(t *testing.T) {
	loop := New(staticBuild(boxMesh(t, 10, 10, 10)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := loop.Run(ctx, DefaultParameters())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, res.Iterations)
}

func TestParametersValidateListsViolations(t *testing.T) {
	assert.NoError(t, DefaultParameters().Validate())

	p := DefaultParameters()
	p.MeshSize = 0
	p.QualityTarget = 2
	p.MaxIterations = 0

	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mesh_size")
	assert.Contains(t, err.Error(), "quality_target")
	assert.Contains(t, err.Error(), "max_iterations")
}

func TestLoadParametersOverlaysDefaults(t *testing.T) {
	in := strings.NewReader("mesh_size: 1.0\nquality_target: 0.9\n")

	p, err := LoadParameters(in)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.MeshSize)
	assert.Equal(t, 0.9, p.QualityTarget)
	assert.Equal(t, DefaultParameters().MinSize, p.MinSize)
	assert.Equal(t, DefaultParameters().ElementCeiling, p.ElementCeiling)
}

func TestLoadParametersRejectsInvalid(t *testing.T) {
	_, err := LoadParameters(strings.NewReader("mesh_size: -1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mesh_size")

	_, err = LoadParameters(strings.NewReader("mesh_size: [nope\n"))
	require.Error(t, err)
}
