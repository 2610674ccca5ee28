package script

import (
	"math"
	"strings"
	"testing"

	"github.com/geomech/stratum/pkg/dwg"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(circle :radius 0.4)`,
			expect: `(circle "__kw_radius" 0.4)`,
		},
		{
			name:   "multiple keywords",
			input:  `(line :from a :to b)`,
			expect: `(line "__kw_from" a "__kw_to" b)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"layer with :keyword inside"`,
			expect: `"layer with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(pile-row :count 8)`,
			expect: `(pile_row "__kw_count" 8)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:start-angle`,
			expect: `"__kw_start-angle"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Simple excavation test
// ---------------------------------------------------------------------------

func TestSimpleExcavation(t *testing.T) {
	eng := NewEngine()

	source := `
(excavation :points (list (pt 0 0) (pt 30 0) (pt 30 20) (pt 0 20)))
`
	d, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if d == nil {
		t.Fatal("expected non-nil drawing")
	}
	if d.EntityCount() != 1 {
		t.Fatalf("expected 1 entity, got %d", d.EntityCount())
	}

	e := d.Entities[0]
	if e.Kind != dwg.EntityPolyline {
		t.Errorf("expected polyline, got %s", e.Kind)
	}
	if e.Layer != "EXCA_MAIN" {
		t.Errorf("expected layer EXCA_MAIN, got %q", e.Layer)
	}

	pd, ok := e.Data.(dwg.PolylineData)
	if !ok {
		t.Fatalf("expected PolylineData, got %T", e.Data)
	}
	if !pd.Closed {
		t.Error("excavation outline should be closed")
	}
	if len(pd.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(pd.Points))
	}
	if pd.Area() != 600 {
		t.Errorf("expected area 600, got %f", pd.Area())
	}

	outline, ok := d.MainOutline()
	if !ok {
		t.Fatal("expected a main outline")
	}
	if outline.Layer != "EXCA_MAIN" {
		t.Errorf("main outline layer: expected EXCA_MAIN, got %q", outline.Layer)
	}
}

// ---------------------------------------------------------------------------
// Variable reference test
// ---------------------------------------------------------------------------

func TestVariableReference(t *testing.T) {
	eng := NewEngine()

	source := `
(def r 0.4)
(circle :layer "PILE_A" :center (pt 5 5) :radius r)
`
	d, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if d.EntityCount() != 1 {
		t.Fatalf("expected 1 entity, got %d", d.EntityCount())
	}

	cd, ok := d.Entities[0].Data.(dwg.CircleData)
	if !ok {
		t.Fatalf("expected CircleData, got %T", d.Entities[0].Data)
	}
	if cd.Radius != 0.4 {
		t.Errorf("expected radius=0.4 (from variable), got %f", cd.Radius)
	}
	if cd.Center.X != 5 || cd.Center.Y != 5 {
		t.Errorf("expected center (5, 5), got (%f, %f)", cd.Center.X, cd.Center.Y)
	}
}

// ---------------------------------------------------------------------------
// Full site script test
// ---------------------------------------------------------------------------

func TestSiteScript(t *testing.T) {
	eng := NewEngine()

	source := `
(def pit-width 30)
(def pit-depth-dir 20)

(excavation :points (list (pt 0 0) (pt pit-width 0) (pt pit-width pit-depth-dir) (pt 0 pit-depth-dir)))

(wall :layer "WALL_D800"
      :points (list (pt -1 -1) (pt 31 -1) (pt 31 21) (pt -1 21)))

(pile-row :layer "PILE_A" :from (pt 2 2) :to (pt 26 2) :count 5 :radius 0.4)

(arc :layer "ANCH_ROW1" :center (pt 15 10) :radius 12 :from 0 :to 90)

(line :layer "ANCH_ROW1" :from (pt 15 10) :to (pt 15 22))
`
	d, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if d == nil {
		t.Fatal("expected non-nil drawing")
	}

	// Expected entities:
	// 1 excavation outline
	// 1 wall trace
	// 5 pile circles
	// 1 anchor arc
	// 1 anchor line
	// Total: 9
	if d.EntityCount() != 9 {
		t.Fatalf("expected 9 entities, got %d", d.EntityCount())
	}

	// Verify the excavation outline resolved its variables.
	outline, ok := d.MainOutline()
	if !ok {
		t.Fatal("expected a main outline")
	}
	opd := outline.Data.(dwg.PolylineData)
	if opd.Points[1].X != 30 {
		t.Errorf("expected variable pit-width=30 in outline, got %f", opd.Points[1].X)
	}
	if opd.Area() != 600 {
		t.Errorf("expected outline area 600, got %f", opd.Area())
	}

	// Verify the wall trace.
	walls := d.OnLayer("WALL_D800")
	if len(walls) != 1 {
		t.Fatalf("expected 1 wall entity, got %d", len(walls))
	}
	wpd, ok := walls[0].Data.(dwg.PolylineData)
	if !ok {
		t.Fatalf("expected PolylineData on wall layer, got %T", walls[0].Data)
	}
	if wpd.Closed {
		t.Error("wall trace should be an open path")
	}
	if len(wpd.Points) != 4 {
		t.Errorf("expected 4 wall points, got %d", len(wpd.Points))
	}

	// Verify the pile row expanded to evenly spaced circles.
	piles := d.OnLayer("PILE_A")
	if len(piles) != 5 {
		t.Fatalf("expected 5 pile circles, got %d", len(piles))
	}
	first := piles[0].Data.(dwg.CircleData)
	last := piles[4].Data.(dwg.CircleData)
	if first.Center.X != 2 || first.Center.Y != 2 {
		t.Errorf("first pile: expected center (2, 2), got (%f, %f)", first.Center.X, first.Center.Y)
	}
	if last.Center.X != 26 || last.Center.Y != 2 {
		t.Errorf("last pile: expected center (26, 2), got (%f, %f)", last.Center.X, last.Center.Y)
	}
	for i := 1; i < len(piles); i++ {
		prev := piles[i-1].Data.(dwg.CircleData)
		cur := piles[i].Data.(dwg.CircleData)
		spacing := cur.Center.X - prev.Center.X
		if math.Abs(spacing-6) > 1e-9 {
			t.Errorf("pile %d: expected spacing 6, got %f", i, spacing)
		}
		if cur.Radius != 0.4 {
			t.Errorf("pile %d: expected radius 0.4, got %f", i, cur.Radius)
		}
	}

	// Verify the anchor entities.
	anchors := d.OnLayer("ANCH_ROW1")
	if len(anchors) != 2 {
		t.Fatalf("expected 2 anchor entities, got %d", len(anchors))
	}
	ad, ok := anchors[0].Data.(dwg.ArcData)
	if !ok {
		t.Fatalf("expected ArcData, got %T", anchors[0].Data)
	}
	if ad.StartAngle != 0 || ad.EndAngle != 90 {
		t.Errorf("expected arc 0..90, got %f..%f", ad.StartAngle, ad.EndAngle)
	}
	ld, ok := anchors[1].Data.(dwg.LineData)
	if !ok {
		t.Fatalf("expected LineData, got %T", anchors[1].Data)
	}
	if ld.End.Y != 22 {
		t.Errorf("expected line end Y=22, got %f", ld.End.Y)
	}

	// Verify layer classification.
	if got := len(d.LayersOfKind(dwg.LayerExcavation)); got != 1 {
		t.Errorf("expected 1 excavation layer, got %d", got)
	}
	if got := len(d.LayersOfKind(dwg.LayerWall)); got != 1 {
		t.Errorf("expected 1 wall layer, got %d", got)
	}
	if got := len(d.LayersOfKind(dwg.LayerPile)); got != 1 {
		t.Errorf("expected 1 pile layer, got %d", got)
	}
	if got := len(d.LayersOfKind(dwg.LayerAnchor)); got != 1 {
		t.Errorf("expected 1 anchor layer, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Builtin validation tests
// ---------------------------------------------------------------------------

func TestLineRequiresEndpoints(t *testing.T) {
	eng := NewEngine()

	_, evalErrs, err := eng.Evaluate(`(line :from (pt 0 0))`)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval error for missing :to")
	}
	if !strings.Contains(evalErrs[0].Message, "to is required") {
		t.Errorf("expected 'to is required' in message, got: %q", evalErrs[0].Message)
	}
}

func TestLineRejectsCoincidentEndpoints(t *testing.T) {
	eng := NewEngine()

	_, evalErrs, err := eng.Evaluate(`(line :from (pt 3 4) :to (pt 3 4))`)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval error for coincident endpoints")
	}
	if !strings.Contains(evalErrs[0].Message, "coincide") {
		t.Errorf("expected 'coincide' in message, got: %q", evalErrs[0].Message)
	}
}

func TestCircleRejectsBadRadius(t *testing.T) {
	eng := NewEngine()

	_, evalErrs, err := eng.Evaluate(`(circle :center (pt 0 0) :radius -1)`)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval error for negative radius")
	}
	if !strings.Contains(evalErrs[0].Message, "radius must be positive") {
		t.Errorf("expected radius message, got: %q", evalErrs[0].Message)
	}
}

func TestOutlineRequiresThreePoints(t *testing.T) {
	eng := NewEngine()

	_, evalErrs, err := eng.Evaluate(`(outline :points (list (pt 0 0) (pt 1 0)))`)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval error for short outline")
	}
	if !strings.Contains(evalErrs[0].Message, "at least 3 points") {
		t.Errorf("expected point-count message, got: %q", evalErrs[0].Message)
	}
}

func TestOutlineRejectsCollinearPoints(t *testing.T) {
	eng := NewEngine()

	_, evalErrs, err := eng.Evaluate(`(outline :points (list (pt 0 0) (pt 1 0) (pt 2 0)))`)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval error for collinear outline")
	}
	if !strings.Contains(evalErrs[0].Message, "collinear") {
		t.Errorf("expected 'collinear' in message, got: %q", evalErrs[0].Message)
	}
}

func TestPileRowCountValidation(t *testing.T) {
	eng := NewEngine()

	_, evalErrs, err := eng.Evaluate(`(pile-row :from (pt 0 0) :to (pt 10 0) :count 1 :radius 0.4)`)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval error for count < 2")
	}
	if !strings.Contains(evalErrs[0].Message, "count must be at least 2") {
		t.Errorf("expected count message, got: %q", evalErrs[0].Message)
	}
}

func TestPointArity(t *testing.T) {
	eng := NewEngine()

	_, evalErrs, err := eng.Evaluate(`(pt 1)`)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval error for wrong pt arity")
	}
	if !strings.Contains(evalErrs[0].Message, "2 arguments") {
		t.Errorf("expected arity message, got: %q", evalErrs[0].Message)
	}
}

// ---------------------------------------------------------------------------
// Default layer tests
// ---------------------------------------------------------------------------

func TestDefaultLayers(t *testing.T) {
	eng := NewEngine()

	source := `
(excavation :points (list (pt 0 0) (pt 10 0) (pt 10 10) (pt 0 10)))
(wall :points (list (pt 0 0) (pt 10 0)))
(pile-row :from (pt 0 0) :to (pt 8 0) :count 2 :radius 0.5)
(line :from (pt 0 0) :to (pt 5 5))
`
	d, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if d.EntityCount() != 5 {
		t.Fatalf("expected 5 entities, got %d", d.EntityCount())
	}

	if got := len(d.OnLayer("EXCA_MAIN")); got != 1 {
		t.Errorf("expected 1 entity on EXCA_MAIN, got %d", got)
	}
	if got := len(d.OnLayer("WALL")); got != 1 {
		t.Errorf("expected 1 entity on WALL, got %d", got)
	}
	if got := len(d.OnLayer("PILE")); got != 2 {
		t.Errorf("expected 2 entities on PILE, got %d", got)
	}
	if got := len(d.OnLayer("0")); got != 1 {
		t.Errorf("expected 1 entity on layer 0, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Handle assignment test
// ---------------------------------------------------------------------------

func TestEntitiesGetPositionalHandles(t *testing.T) {
	eng := NewEngine()

	source := `
(line :from (pt 0 0) :to (pt 1 0))
(line :from (pt 0 1) :to (pt 1 1))
`
	d, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if d.EntityCount() != 2 {
		t.Fatalf("expected 2 entities, got %d", d.EntityCount())
	}
	if d.Entities[0].Handle == "" || d.Entities[1].Handle == "" {
		t.Error("expected entities to receive handles")
	}
	if d.Entities[0].Handle == d.Entities[1].Handle {
		t.Error("expected distinct handles")
	}
}
