package script

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/geomech/stratum/pkg/dwg"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms drawing script source before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: pile-row -> pile_row
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpPoint wraps a dwg.Point so it can be returned from `pt` and consumed
// by the drawing builtins.
type sexpPoint struct {
	pt dwg.Point
}

func (p *sexpPoint) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(pt %.3f %.3f)", p.pt.X, p.pt.Y)
}
func (p *sexpPoint) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value; treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toPoint extracts a dwg.Point from a sexpPoint.
func toPoint(s zygo.Sexp) (dwg.Point, error) {
	if p, ok := s.(*sexpPoint); ok {
		return p.pt, nil
	}
	return dwg.Point{}, fmt.Errorf("expected point, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// toPoints converts a Lisp list of pt values to a point slice.
func toPoints(s zygo.Sexp) ([]dwg.Point, error) {
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	pts := make([]dwg.Point, 0, len(items))
	for i, item := range items {
		p, err := toPoint(item)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i+1, err)
		}
		pts = append(pts, p)
	}
	return pts, nil
}

// requiredPoint fetches a mandatory point keyword argument.
func requiredPoint(pa kwArgs, fn, key string) (dwg.Point, error) {
	v, ok := pa.kw[key]
	if !ok {
		return dwg.Point{}, fmt.Errorf("%s: %s is required", fn, key)
	}
	p, err := toPoint(v)
	if err != nil {
		return dwg.Point{}, fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	return p, nil
}

// requiredFloat fetches a mandatory numeric keyword argument.
func requiredFloat(pa kwArgs, fn, key string) (float64, error) {
	v, ok := pa.kw[key]
	if !ok {
		return 0, fmt.Errorf("%s: %s is required", fn, key)
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	return f, nil
}

// layerOr fetches the layer keyword argument or falls back to def.
func layerOr(pa kwArgs, fn, def string) (string, error) {
	v, ok := pa.kw["layer"]
	if !ok {
		return def, nil
	}
	s, err := toString(v)
	if err != nil {
		return "", fmt.Errorf("%s: layer: %w", fn, err)
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Entity accumulation
// ---------------------------------------------------------------------------

// builder collects entities as the script runs. Handles are assigned by
// position when the drawing is assembled.
type builder struct {
	entities []dwg.Entity
}

// add appends an entity and returns its positional handle so scripts can
// reference what they created. The handle format matches the one assigned
// when the drawing is assembled.
func (b *builder) add(kind dwg.EntityKind, layer string, data dwg.EntityData) zygo.Sexp {
	b.entities = append(b.entities, dwg.Entity{Kind: kind, Layer: layer, Data: data})
	return &zygo.SexpStr{S: fmt.Sprintf("%X", len(b.entities))}
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the drawing DSL builtins into a zygomys
// environment. The builtins append entities to the provided builder during
// evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *builder) {

	// -----------------------------------------------------------------------
	// (pt 12.5 30)
	// -----------------------------------------------------------------------
	env.AddFunction("pt", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("pt requires exactly 2 arguments, got %d", len(args))
		}
		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("pt: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("pt: y: %w", err)
		}
		return &sexpPoint{pt: dwg.Point{X: x, Y: y}}, nil
	})

	// -----------------------------------------------------------------------
	// (line :layer "WALL_D800" :from (pt 0 0) :to (pt 30 0))
	// -----------------------------------------------------------------------
	env.AddFunction("line", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		layer, err := layerOr(pa, "line", "0")
		if err != nil {
			return zygo.SexpNull, err
		}
		from, err := requiredPoint(pa, "line", "from")
		if err != nil {
			return zygo.SexpNull, err
		}
		to, err := requiredPoint(pa, "line", "to")
		if err != nil {
			return zygo.SexpNull, err
		}
		if from == to {
			return zygo.SexpNull, fmt.Errorf("line: from and to coincide at (%g, %g)", from.X, from.Y)
		}

		return b.add(dwg.EntityLine, layer, dwg.LineData{Start: from, End: to}), nil
	})

	// -----------------------------------------------------------------------
	// (outline :layer "EXCA_SOUTH" :points (list (pt 0 0) (pt 30 0) (pt 30 20)))
	// -----------------------------------------------------------------------
	env.AddFunction("outline", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return addClosedOutline(b, "outline", "0", args)
	})

	// -----------------------------------------------------------------------
	// (excavation :points (list ...))
	//
	// Shorthand for a closed outline on the main excavation layer.
	// -----------------------------------------------------------------------
	env.AddFunction("excavation", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return addClosedOutline(b, "excavation", "EXCA_MAIN", args)
	})

	// -----------------------------------------------------------------------
	// (path :layer "ANCH_ROW1" :points (list (pt 0 0) (pt 10 0)))
	// -----------------------------------------------------------------------
	env.AddFunction("path", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return addOpenPath(b, "path", "0", args)
	})

	// -----------------------------------------------------------------------
	// (wall :points (list (pt 0 0) (pt 30 0) (pt 30 20)))
	//
	// Shorthand for an open path on the default wall layer.
	// -----------------------------------------------------------------------
	env.AddFunction("wall", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return addOpenPath(b, "wall", "WALL", args)
	})

	// -----------------------------------------------------------------------
	// (circle :layer "PILE_A" :center (pt 5 5) :radius 0.4)
	// -----------------------------------------------------------------------
	env.AddFunction("circle", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		layer, err := layerOr(pa, "circle", "0")
		if err != nil {
			return zygo.SexpNull, err
		}
		center, err := requiredPoint(pa, "circle", "center")
		if err != nil {
			return zygo.SexpNull, err
		}
		radius, err := requiredFloat(pa, "circle", "radius")
		if err != nil {
			return zygo.SexpNull, err
		}
		if radius <= 0 {
			return zygo.SexpNull, fmt.Errorf("circle: radius must be positive, got %g", radius)
		}

		return b.add(dwg.EntityCircle, layer, dwg.CircleData{Center: center, Radius: radius}), nil
	})

	// -----------------------------------------------------------------------
	// (arc :layer "WALL_D800" :center (pt 0 0) :radius 12 :from 0 :to 90)
	//
	// Angles are degrees, counterclockwise from east.
	// -----------------------------------------------------------------------
	env.AddFunction("arc", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		layer, err := layerOr(pa, "arc", "0")
		if err != nil {
			return zygo.SexpNull, err
		}
		center, err := requiredPoint(pa, "arc", "center")
		if err != nil {
			return zygo.SexpNull, err
		}
		radius, err := requiredFloat(pa, "arc", "radius")
		if err != nil {
			return zygo.SexpNull, err
		}
		if radius <= 0 {
			return zygo.SexpNull, fmt.Errorf("arc: radius must be positive, got %g", radius)
		}
		from, err := requiredFloat(pa, "arc", "from")
		if err != nil {
			return zygo.SexpNull, err
		}
		to, err := requiredFloat(pa, "arc", "to")
		if err != nil {
			return zygo.SexpNull, err
		}

		return b.add(dwg.EntityArc, layer, dwg.ArcData{
			Center:     center,
			Radius:     radius,
			StartAngle: from,
			EndAngle:   to,
		}), nil
	})

	// -----------------------------------------------------------------------
	// (pile-row :layer "PILE_A" :from (pt 0 0) :to (pt 28 0) :count 8 :radius 0.4)
	//
	// Note: registered as "pile_row" because zygomys does not support
	// hyphens in identifiers. The preprocessor converts pile-row to
	// pile_row in the source.
	// -----------------------------------------------------------------------
	env.AddFunction("pile_row", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		layer, err := layerOr(pa, "pile-row", "PILE")
		if err != nil {
			return zygo.SexpNull, err
		}
		from, err := requiredPoint(pa, "pile-row", "from")
		if err != nil {
			return zygo.SexpNull, err
		}
		to, err := requiredPoint(pa, "pile-row", "to")
		if err != nil {
			return zygo.SexpNull, err
		}
		countF, err := requiredFloat(pa, "pile-row", "count")
		if err != nil {
			return zygo.SexpNull, err
		}
		count := int(countF)
		if count < 2 {
			return zygo.SexpNull, fmt.Errorf("pile-row: count must be at least 2, got %d", count)
		}
		radius, err := requiredFloat(pa, "pile-row", "radius")
		if err != nil {
			return zygo.SexpNull, err
		}
		if radius <= 0 {
			return zygo.SexpNull, fmt.Errorf("pile-row: radius must be positive, got %g", radius)
		}

		var last zygo.Sexp = zygo.SexpNull
		for i := 0; i < count; i++ {
			t := float64(i) / float64(count-1)
			center := dwg.Point{
				X: from.X + t*(to.X-from.X),
				Y: from.Y + t*(to.Y-from.Y),
			}
			last = b.add(dwg.EntityCircle, layer, dwg.CircleData{Center: center, Radius: radius})
		}
		return last, nil
	})
}

// addClosedOutline parses :layer and :points and appends a closed polyline.
func addClosedOutline(b *builder, fn, defaultLayer string, args []zygo.Sexp) (zygo.Sexp, error) {
	pa := parseArgs(args)

	layer, err := layerOr(pa, fn, defaultLayer)
	if err != nil {
		return zygo.SexpNull, err
	}
	v, ok := pa.kw["points"]
	if !ok {
		return zygo.SexpNull, fmt.Errorf("%s: points is required", fn)
	}
	pts, err := toPoints(v)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s: points: %w", fn, err)
	}
	if len(pts) < 3 {
		return zygo.SexpNull, fmt.Errorf("%s: needs at least 3 points, got %d", fn, len(pts))
	}

	data := dwg.PolylineData{Points: pts, Closed: true}
	if data.Area() == 0 {
		return zygo.SexpNull, fmt.Errorf("%s: points are collinear", fn)
	}

	return b.add(dwg.EntityPolyline, layer, data), nil
}

// addOpenPath parses :layer and :points and appends an open polyline.
func addOpenPath(b *builder, fn, defaultLayer string, args []zygo.Sexp) (zygo.Sexp, error) {
	pa := parseArgs(args)

	layer, err := layerOr(pa, fn, defaultLayer)
	if err != nil {
		return zygo.SexpNull, err
	}
	v, ok := pa.kw["points"]
	if !ok {
		return zygo.SexpNull, fmt.Errorf("%s: points is required", fn)
	}
	pts, err := toPoints(v)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s: points: %w", fn, err)
	}
	if len(pts) < 2 {
		return zygo.SexpNull, fmt.Errorf("%s: needs at least 2 points, got %d", fn, len(pts))
	}

	return b.add(dwg.EntityPolyline, layer, dwg.PolylineData{Points: pts, Closed: false}), nil
}
