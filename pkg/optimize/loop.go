package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geomech/stratum/pkg/quality"
	"github.com/geomech/stratum/pkg/solid"
)

// sizeEps detects a clamped, unchanging mesh size.
const sizeEps = 1e-9

// headroom keeps the element target below the hard ceiling so the loop
// converges with margin instead of riding the limit.
const headroom = 0.75

// State describes where a loop is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateIterating
	StateConverged
	StateCapped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateCapped:
		return "capped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrRunActive is returned when Run is called while another run is in
// progress. Runs are rejected, not queued.
var ErrRunActive = errors.New("optimization run already active")

// BudgetError reports that the model cannot fit the element ceiling even at
// the coarsest allowed mesh size.
type BudgetError struct {
	Elements int
	Ceiling  int
	MeshSize float64
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("element estimate %d exceeds ceiling %d at coarsest mesh size %g",
		e.Elements, e.Ceiling, e.MeshSize)
}

// BuildFunc produces the model for one iteration. Implementations receive
// the parameters with MeshSize set to the iteration's current size and may
// return non-fatal warnings alongside the model.
type BuildFunc func(ctx context.Context, p Parameters) (solid.Model, []string, error)

// Iteration is one history entry. Adjusted is the mesh size chosen for the
// next iteration; it equals MeshSize when the loop stopped here.
type Iteration struct {
	N        int           `json:"n"`
	MeshSize float64       `json:"mesh_size"`
	Elements int           `json:"elements"`
	Score    float64       `json:"score"`
	Adjusted float64       `json:"adjusted"`
	Duration time.Duration `json:"duration"`
}

// Result summarizes a finished run. Best holds the highest-scoring model
// seen, which is not necessarily the last one built.
type Result struct {
	RunID            uuid.UUID     `json:"run_id"`
	State            State         `json:"state"`
	Success          bool          `json:"success"`
	OriginalQuality  float64       `json:"original_quality"`
	OptimizedQuality float64       `json:"optimized_quality"`
	ElementsBefore   int           `json:"elements_before"`
	ElementsAfter    int           `json:"elements_after"`
	Iterations       []Iteration   `json:"iterations"`
	Best             solid.Model   `json:"best"`
	Recommendations  []string      `json:"recommendations,omitempty"`
	Warnings         []string      `json:"warnings,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// Loop owns the single-run optimization state machine.
type Loop struct {
	build BuildFunc
	log   *zap.Logger
	busy  atomic.Bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger attaches a structured logger to the loop.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// New returns a loop around the given build function.
func New(build BuildFunc, opts ...Option) *Loop {
	l := &Loop{
		build: build,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State reports the live lifecycle state: Iterating while a run holds the
// loop, Idle otherwise. Terminal states live on the Result.
func (l *Loop) State() State {
	if l.busy.Load() {
		return StateIterating
	}
	return StateIdle
}

// Run executes the adaptation loop synchronously. Only one run may be
// active at a time; a second caller gets ErrRunActive immediately. The
// context is checked at iteration boundaries, never mid-build.
//
// Each iteration builds the model at the current mesh size, analyzes it,
// and either stops or rescales the mesh size by sqrt(elements/target),
// clamped to [MinSize, MaxSize]. The target leaves headroom below the hard
// element ceiling. A run that cannot fit the ceiling even at MaxSize fails
// with a BudgetError; a run whose mesh size is pinned by the clamp without
// reaching the quality target is capped, not failed.
func (l *Loop) Run(ctx context.Context, p Parameters) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{State: StateFailed}, err
	}

	if !l.busy.CompareAndSwap(false, true) {
		return Result{State: StateFailed}, ErrRunActive
	}
	defer l.busy.Store(false)

	start := time.Now()
	result := Result{
		RunID: uuid.New(),
		State: StateFailed,
	}

	meshSize := p.MeshSize
	target := int(headroom * float64(p.ElementCeiling))
	if target < 1 {
		target = 1
	}

	bestScore := math.Inf(-1)
	var bestFeedback quality.Feedback

	l.log.Info("optimization run started",
		zap.String("run_id", result.RunID.String()),
		zap.Float64("mesh_size", meshSize),
		zap.Int("element_ceiling", p.ElementCeiling),
		zap.Float64("quality_target", p.QualityTarget))

	finish := func(state State, err error) (Result, error) {
		result.State = state
		result.Success = state == StateConverged
		result.OptimizedQuality = bestScore
		result.ElementsAfter = bestFeedback.ElementEstimate
		if len(result.Iterations) == 0 {
			result.OptimizedQuality = 0
		}
		result.Duration = time.Since(start)
		observeRun(state, result.Duration)
		l.log.Info("optimization run finished",
			zap.String("run_id", result.RunID.String()),
			zap.String("state", state.String()),
			zap.Int("iterations", len(result.Iterations)),
			zap.Duration("duration", result.Duration))
		return result, err
	}

	for n := 1; n <= p.MaxIterations; n++ {
		select {
		case <-ctx.Done():
			return finish(StateFailed, ctx.Err())
		default:
		}

		itStart := time.Now()
		pp := p
		pp.MeshSize = meshSize
		model, warnings, err := l.build(ctx, pp)
		if err != nil {
			return finish(StateFailed, fmt.Errorf("iteration %d: build: %w", n, err))
		}
		result.Warnings = warnings

		fb := quality.Analyze(model.Mesh, p.thresholds(meshSize))
		if n == 1 {
			result.OriginalQuality = fb.Score
			result.ElementsBefore = fb.ElementEstimate
		}
		if fb.Score > bestScore {
			bestScore = fb.Score
			bestFeedback = fb
			result.Best = model
		}
		result.Recommendations = recommendationsFrom(fb)

		iter := Iteration{
			N:        n,
			MeshSize: meshSize,
			Elements: fb.ElementEstimate,
			Score:    fb.Score,
			Adjusted: meshSize,
			Duration: time.Since(itStart),
		}

		l.log.Info("optimization iteration",
			zap.Int("iteration", n),
			zap.Float64("mesh_size", meshSize),
			zap.Int("elements", fb.ElementEstimate),
			zap.Float64("score", fb.Score))
		observeIteration(meshSize, fb.ElementEstimate, fb.Score)

		if fb.Score >= p.QualityTarget && fb.ElementEstimate <= p.ElementCeiling {
			result.Iterations = append(result.Iterations, iter)
			return finish(StateConverged, nil)
		}

		next := meshSize * math.Sqrt(float64(fb.ElementEstimate)/float64(target))
		next = math.Min(math.Max(next, p.MinSize), p.MaxSize)

		if math.Abs(next-meshSize) < sizeEps {
			result.Iterations = append(result.Iterations, iter)
			if fb.ElementEstimate > p.ElementCeiling {
				return finish(StateFailed, &BudgetError{
					Elements: fb.ElementEstimate,
					Ceiling:  p.ElementCeiling,
					MeshSize: meshSize,
				})
			}
			// Sizing is pinned by the clamp; no further adjustment can help.
			return finish(StateCapped, nil)
		}

		iter.Adjusted = next
		result.Iterations = append(result.Iterations, iter)
		meshSize = next
	}

	return finish(StateCapped, nil)
}

// recommendationsFrom collapses problem remedies into a unique, ordered
// list.
func recommendationsFrom(fb quality.Feedback) []string {
	if len(fb.Problems) == 0 {
		return nil
	}
	seen := make(map[string]bool, 4)
	var recs []string
	for _, p := range fb.Problems {
		if p.Remedy == "" || seen[p.Remedy] {
			continue
		}
		seen[p.Remedy] = true
		recs = append(recs, p.Remedy)
	}
	return recs
}
