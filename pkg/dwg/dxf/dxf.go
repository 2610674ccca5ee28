// Package dxf imports AutoCAD DXF files into the drawing model.
//
// Only entity types with an excavation-plan meaning are mapped: LINE,
// POLYLINE, CIRCLE and ARC. Everything else is skipped with an
// unsupported-shape warning so callers can report what was dropped.
package dxf

import (
	"fmt"
	"io"

	"github.com/rpaloschi/dxf-go/document"
	"github.com/rpaloschi/dxf-go/entities"

	"github.com/geomech/stratum/pkg/dwg"
)

// coincideEps is the squared distance under which two trace vertices count
// as the same point.
const coincideEps = 1e-12

// Import reads a DXF document and converts its model-space entities into a
// validated Drawing. Unsupported entity types are skipped with a warning;
// Import fails only when nothing convertible remains.
func Import(r io.Reader) (*dwg.Drawing, error) {
	doc, err := document.DxfDocumentFromStream(r)
	if err != nil {
		return nil, fmt.Errorf("dxf: %w", err)
	}
	if doc.Entities == nil {
		return nil, &dwg.ParseError{Reasons: []string{"no ENTITIES section in DXF"}}
	}

	var converted []dwg.Entity
	var skipped []dwg.Warning
	for i, raw := range doc.Entities.Entities {
		e, warn := convert(raw, i)
		if warn != nil {
			skipped = append(skipped, *warn)
			continue
		}
		converted = append(converted, e)
	}

	if len(converted) == 0 {
		reasons := []string{"no convertible entities in DXF"}
		for _, w := range skipped {
			reasons = append(reasons, w.String())
		}
		return nil, &dwg.ParseError{Reasons: reasons}
	}

	d, err := dwg.FromEntities(converted)
	if err != nil {
		return nil, err
	}
	d.Warnings = append(d.Warnings, skipped...)
	return d, nil
}

// convert maps one DXF entity to a drawing entity, or returns a warning when
// the type has no mapping.
func convert(raw any, record int) (dwg.Entity, *dwg.Warning) {
	switch v := raw.(type) {
	case *entities.Line:
		return dwg.Entity{
			Handle: v.Handle,
			Layer:  v.LayerName,
			Kind:   dwg.EntityLine,
			Data: dwg.LineData{
				Start: dwg.Point{X: v.Start.X, Y: v.Start.Y},
				End:   dwg.Point{X: v.End.X, Y: v.End.Y},
			},
		}, nil

	case *entities.Polyline:
		pts := make([]dwg.Point, 0, len(v.Vertices))
		for _, vert := range v.Vertices {
			pts = append(pts, dwg.Point{X: vert.Location.X, Y: vert.Location.Y})
		}
		pts, closed := normalizeTrace(pts, v.LayerName)
		return dwg.Entity{
			Handle: v.Handle,
			Layer:  v.LayerName,
			Kind:   dwg.EntityPolyline,
			Data:   dwg.PolylineData{Points: pts, Closed: closed},
		}, nil

	case *entities.Circle:
		return dwg.Entity{
			Handle: v.Handle,
			Layer:  v.LayerName,
			Kind:   dwg.EntityCircle,
			Data: dwg.CircleData{
				Center: dwg.Point{X: v.Center.X, Y: v.Center.Y},
				Radius: v.Radius,
			},
		}, nil

	case *entities.Arc:
		return dwg.Entity{
			Handle: v.Handle,
			Layer:  v.LayerName,
			Kind:   dwg.EntityArc,
			Data: dwg.ArcData{
				Center:     dwg.Point{X: v.Center.X, Y: v.Center.Y},
				Radius:     v.Radius,
				StartAngle: v.StartAngle,
				EndAngle:   v.EndAngle,
			},
		}, nil

	case *entities.Spline:
		return dwg.Entity{}, &dwg.Warning{
			Code:    dwg.WarnUnsupportedShape,
			Record:  record,
			Message: "SPLINE is not converted; approximate it with a polyline",
		}

	default:
		return dwg.Entity{}, &dwg.Warning{
			Code:    dwg.WarnUnsupportedShape,
			Record:  record,
			Message: fmt.Sprintf("unsupported DXF entity %T", raw),
		}
	}
}

// normalizeTrace decides whether a vertex run is a closed outline. A trace
// that returns to its first vertex is closed, and the duplicate end vertex
// is dropped. Excavation layers hold pit outlines, so a trace with three or
// more vertices there is closed even when the end vertex was not repeated.
func normalizeTrace(pts []dwg.Point, layer string) ([]dwg.Point, bool) {
	if len(pts) >= 4 && samePoint(pts[0], pts[len(pts)-1]) {
		return pts[:len(pts)-1], true
	}
	if len(pts) >= 3 && dwg.ClassifyLayer(layer) == dwg.LayerExcavation {
		return pts, true
	}
	return pts, false
}

func samePoint(a, b dwg.Point) bool {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx+dy*dy < coincideEps
}
