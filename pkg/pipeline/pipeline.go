// Package pipeline wires drawing ingest, extrusion, composition, staging and
// quality analysis into the end-to-end excavation model build.
//
// A Builder is safe for concurrent Build calls. Optimize holds an exclusive
// slot per Builder and rejects overlapping runs instead of queueing them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/geomech/stratum/pkg/dwg"
	"github.com/geomech/stratum/pkg/extrude"
	"github.com/geomech/stratum/pkg/kernel"
	"github.com/geomech/stratum/pkg/mesh"
	"github.com/geomech/stratum/pkg/optimize"
	"github.com/geomech/stratum/pkg/quality"
	"github.com/geomech/stratum/pkg/solid"
	"github.com/geomech/stratum/pkg/stage"
)

const (
	// DefaultSoilMargin is the plan-view soil apron around the excavation
	// outline when none is configured.
	DefaultSoilMargin = 20.0
	// DefaultDepth is the excavation depth when neither the extrusion options
	// nor a schedule fix one.
	DefaultDepth = 10.0
	// soilDepthFactor sizes the soil block depth relative to the excavation
	// depth when no explicit depth is configured.
	soilDepthFactor = 1.5
)

// SoilBox sizes the soil block surrounding the excavation. Zero values pick
// the defaults: the standard margin, and one and a half times the excavation
// depth.
type SoilBox struct {
	Margin float64 `yaml:"margin" json:"margin"`
	Depth  float64 `yaml:"depth" json:"depth"`
}

// Input is one build request. Drawing takes precedence; Records is decoded
// with the drawing codec when Drawing is nil.
type Input struct {
	Drawing  *dwg.Drawing
	Records  []byte
	Soil     SoilBox
	Schedule stage.Schedule
	Extrude  extrude.Options
	Op       solid.Operation
	Quality  quality.Thresholds
}

// Output collects the composed model and everything derived from it.
type Output struct {
	Model      solid.Model      `json:"model"`
	Soil       solid.Model      `json:"soil"`
	Excavation solid.Model      `json:"excavation"`
	Stages     []stage.Stage    `json:"stages,omitempty"`
	Feedback   quality.Feedback `json:"feedback"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder runs drawing-to-model builds. The zero configuration uses the
// approximate composition; a geometry kernel or an exact composer backend
// upgrades the boolean when configured.
type Builder struct {
	log     *zap.Logger
	kern    kernel.Kernel
	exact   solid.ExactComposer
	safety  float64
	optBusy atomic.Bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

// WithKernel routes the boolean composition through a geometry kernel.
func WithKernel(k kernel.Kernel) Option {
	return func(b *Builder) { b.kern = k }
}

// WithExactComposer routes the boolean composition through an exact backend.
// The backend takes precedence over a configured kernel; failures of either
// fall back to the approximate composition.
func WithExactComposer(c solid.ExactComposer) Option {
	return func(b *Builder) { b.exact = c }
}

// WithSafetyFactor scales stage volumes for over-excavation allowances.
func WithSafetyFactor(f float64) Option {
	return func(b *Builder) {
		if f > 0 {
			b.safety = f
		}
	}
}

// New creates a Builder with the given options.
func New(opts ...Option) *Builder {
	b := &Builder{
		log:    zap.NewNop(),
		safety: 1.0,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Build turns a drawing into a composed excavation model: parse, extrude per
// layer profile, compose against the soil block, partition stages and grade
// mesh quality. Soil, excavation and the optional kernel composition are
// built concurrently.
func (b *Builder) Build(ctx context.Context, in Input) (Output, error) {
	start := time.Now()

	d, warnings, err := b.resolveDrawing(in)
	if err != nil {
		return Output{}, err
	}

	outlineEnt, ok := d.MainOutline()
	if !ok {
		return Output{}, errors.New("pipeline: drawing has no closed outline to excavate")
	}
	outline := outlineEnt.Data.(dwg.PolylineData).Points

	opts := in.Extrude
	opts.BaseZ = 0 // the pit always starts at grade
	if opts.Height <= 0 {
		opts.Height = depthFrom(in.Schedule)
	}
	if opts.WallWidth <= 0 {
		opts.WallWidth = extrude.DefaultWallWidth
	}

	if len(in.Schedule) > 0 {
		if err := in.Schedule.Validate(opts.Height); err != nil {
			return Output{}, fmt.Errorf("pipeline: %w", err)
		}
	}

	op := in.Op
	if op == "" {
		op = solid.OpDifference
	}
	if !op.Valid() {
		return Output{}, &solid.UnsupportedOperationError{Op: op}
	}

	soilRect, soilDepth := soilBounds(outline, in.Soil, opts.Height)

	var (
		soilMesh  mesh.Mesh
		excaMesh  mesh.Mesh
		fragWarns []dwg.Warning
		kernMesh  *mesh.Mesh
		kernErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := extrude.Prism(soilRect, 0, soilDepth)
		if err != nil {
			return fmt.Errorf("pipeline: soil block: %w", err)
		}
		soilMesh = m
		return nil
	})
	g.Go(func() error {
		frags, warns := extrude.All(d.Entities, opts)
		fragWarns = warns
		if len(frags) == 0 {
			return errors.New("pipeline: no entity produced geometry")
		}
		meshes := make([]mesh.Mesh, 0, len(frags))
		for _, f := range frags {
			meshes = append(meshes, f.Mesh)
		}
		excaMesh = mesh.Merge(meshes...)
		return nil
	})
	if b.kern != nil {
		g.Go(func() error {
			// Kernel failure falls back to the approximation, never aborts.
			kernMesh, kernErr = b.composeWithKernel(gctx, d, outlineEnt.Handle, outline, soilRect, soilDepth, opts, op)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Output{}, err
	}

	for _, w := range fragWarns {
		warnings = append(warnings, w.String())
	}

	soilModel := solid.FromMesh(soilMesh, op)
	soilModel.Provenance.Note = "soil block"
	excaModel := solid.FromMesh(excaMesh, op)
	excaModel.Provenance.Note = "excavation assembly"

	model, composeWarns, err := b.compose(ctx, soilMesh, excaMesh, kernMesh, kernErr, op, opts)
	warnings = append(warnings, composeWarns...)
	if err != nil {
		return Output{}, err
	}

	var stages []stage.Stage
	if len(in.Schedule) > 0 {
		part := stage.Partitioner{SafetyFactor: b.safety}
		stages, err = part.Partition(outline, opts.Height, in.Schedule)
		if err != nil {
			return Output{}, fmt.Errorf("pipeline: %w", err)
		}
	}

	th := in.Quality
	if th.SharpAngleDeg <= 0 && th.MaxAspectRatio <= 0 {
		th = quality.DefaultThresholds()
	}
	if th.MeshSize <= 0 {
		th.MeshSize = opts.MeshSize
	}
	fb := quality.Analyze(model.Mesh, th)

	b.log.Info("excavation model built",
		zap.String("run_id", model.Provenance.RunID.String()),
		zap.String("op", string(op)),
		zap.Int("entities", d.EntityCount()),
		zap.Int("triangles", model.Metrics.TriangleCount),
		zap.Float64("volume", model.Metrics.Volume),
		zap.Float64("quality", fb.Score),
		zap.Int("stages", len(stages)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return Output{
		Model:      model,
		Soil:       soilModel,
		Excavation: excaModel,
		Stages:     stages,
		Feedback:   fb,
		Warnings:   warnings,
	}, nil
}

// resolveDrawing picks the parsed drawing or decodes the raw records, and
// lifts parse warnings into build warnings.
func (b *Builder) resolveDrawing(in Input) (*dwg.Drawing, []string, error) {
	d := in.Drawing
	if d == nil {
		if len(in.Records) == 0 {
			return nil, nil, errors.New("pipeline: no drawing provided")
		}
		var err error
		d, err = dwg.DecodeBytes(in.Records)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline: %w", err)
		}
	}
	var warnings []string
	for _, w := range d.Warnings {
		warnings = append(warnings, w.String())
	}
	return d, warnings, nil
}

// compose picks the best available composition path: the exact backend, then
// the geometry kernel, then the documented mesh approximation. Failures of
// the better paths degrade with a warning instead of failing the build.
func (b *Builder) compose(ctx context.Context, soil, exca mesh.Mesh, kernMesh *mesh.Mesh, kernErr error, op solid.Operation, opts extrude.Options) (solid.Model, []string, error) {
	var warnings []string

	if b.exact != nil {
		res, err := b.exact.Compose(ctx, solid.BooleanRequest{
			Soil:       soil,
			Excavation: exca,
			Op:         op,
			Tolerance:  opts.MeshSize,
			Profile:    solid.DefaultProfile(),
		})
		if err == nil {
			warnings = append(warnings, res.Warnings...)
			m := solid.FromMesh(res.Mesh, op)
			if res.Exact {
				m.Provenance.Note = "exact boolean from composer backend"
			} else {
				m.Provenance.Note = "composer backend approximation"
			}
			return m, warnings, nil
		}
		warnings = append(warnings, fmt.Sprintf("exact composer failed: %v; using fallback composition", err))
		b.log.Warn("exact composer failed", zap.Error(err))
	}

	if b.kern != nil {
		if kernErr == nil && kernMesh != nil {
			m := solid.FromMesh(*kernMesh, op)
			m.Provenance.Note = "boolean evaluated by geometry kernel"
			return m, warnings, nil
		}
		warnings = append(warnings, fmt.Sprintf("kernel composition failed: %v; using approximate composition", kernErr))
		b.log.Warn("kernel composition failed", zap.Error(kernErr))
	}

	m, err := solid.Compose(soil, exca, op)
	if err != nil {
		return solid.Model{}, warnings, err
	}
	return m, warnings, nil
}

// composeWithKernel rebuilds the scene as kernel solids and evaluates the
// boolean exactly. The main outline becomes the base pit prism; wall traces
// become slab prisms and pile sections cylinders, all unioned into the
// excavation solid before the requested operation against the soil block.
func (b *Builder) composeWithKernel(ctx context.Context, d *dwg.Drawing, outlineHandle string, outline []dwg.Point, soilRect []dwg.Point, soilDepth float64, opts extrude.Options, op solid.Operation) (*mesh.Mesh, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	soil := b.kern.Slab(
		soilRect[2].X-soilRect[0].X,
		soilRect[2].Y-soilRect[0].Y,
		soilDepth,
	)
	soil = b.kern.Translate(soil, soilRect[0].X, soilRect[0].Y, 0)

	exca, err := b.kern.Prism(toXY(outline), opts.Height)
	if err != nil {
		return nil, fmt.Errorf("outline prism: %w", err)
	}
	for _, e := range d.Entities {
		if e.Handle == outlineHandle {
			continue
		}
		s := b.entitySolid(e, opts)
		if s != nil {
			exca = b.kern.Union(exca, s)
		}
	}

	var composed kernel.Solid
	switch op {
	case solid.OpDifference:
		composed = b.kern.Difference(soil, exca)
	case solid.OpUnion:
		composed = b.kern.Union(soil, exca)
	case solid.OpIntersection:
		composed = b.kern.Intersection(soil, exca)
	default:
		return nil, &solid.UnsupportedOperationError{Op: op}
	}
	return b.kern.ToMesh(composed)
}

// entitySolid lifts one support entity into a kernel solid, or nil when the
// entity has no usable footprint.
func (b *Builder) entitySolid(e dwg.Entity, opts extrude.Options) kernel.Solid {
	if cd, ok := e.Data.(dwg.CircleData); ok {
		if cd.Radius <= 0 {
			return nil
		}
		s := b.kern.Cylinder(opts.Height, cd.Radius, opts.SegmentsFor(cd.Radius))
		return b.kern.Translate(s, cd.Center.X, cd.Center.Y, 0)
	}

	var merged kernel.Solid
	for _, fp := range extrude.Footprints(e, opts) {
		p, err := b.kern.Prism(toXY(fp), opts.Height)
		if err != nil {
			continue
		}
		if merged == nil {
			merged = p
		} else {
			merged = b.kern.Union(merged, p)
		}
	}
	return merged
}

// ---------------------------------------------------------------------------
// Optimize
// ---------------------------------------------------------------------------

// Optimize runs the mesh size adjustment loop with this Builder supplying
// each iteration's model. Only one optimization may run per Builder at a
// time; a second call returns optimize.ErrRunActive immediately.
func (b *Builder) Optimize(ctx context.Context, in Input, p optimize.Parameters) (optimize.Result, error) {
	if !b.optBusy.CompareAndSwap(false, true) {
		return optimize.Result{}, optimize.ErrRunActive
	}
	defer b.optBusy.Store(false)

	loop := optimize.New(func(ctx context.Context, pp optimize.Parameters) (solid.Model, []string, error) {
		run := in
		run.Extrude.MeshSize = pp.MeshSize
		run.Quality = quality.Thresholds{
			SharpAngleDeg:  quality.DefaultThresholds().SharpAngleDeg,
			MaxAspectRatio: pp.MaxAspectRatio,
			MeshSize:       pp.MeshSize,
		}
		out, err := b.Build(ctx, run)
		if err != nil {
			return solid.Model{}, nil, err
		}
		return out.Model, out.Warnings, nil
	}, optimize.WithLogger(b.log))

	return loop.Run(ctx, p)
}

// ---------------------------------------------------------------------------
// Geometry helpers
// ---------------------------------------------------------------------------

// depthFrom derives the excavation depth from the final schedule step.
func depthFrom(sched stage.Schedule) float64 {
	if len(sched) > 0 {
		return sched[len(sched)-1].Depth
	}
	return DefaultDepth
}

// soilBounds computes the CCW plan rectangle and depth of the soil block.
// The rectangle is the outline extents grown by the margin on every side.
// The block always reaches at least the pit bottom.
func soilBounds(outline []dwg.Point, box SoilBox, excDepth float64) ([]dwg.Point, float64) {
	minX, minY := outline[0].X, outline[0].Y
	maxX, maxY := minX, minY
	for _, p := range outline[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	margin := box.Margin
	if margin <= 0 {
		margin = DefaultSoilMargin
	}
	depth := box.Depth
	if depth <= 0 {
		depth = soilDepthFactor * excDepth
	}
	if depth < excDepth {
		depth = excDepth
	}

	rect := []dwg.Point{
		{X: minX - margin, Y: minY - margin},
		{X: maxX + margin, Y: minY - margin},
		{X: maxX + margin, Y: maxY + margin},
		{X: minX - margin, Y: maxY + margin},
	}
	return rect, depth
}

func toXY(pts []dwg.Point) [][2]float64 {
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}
