package dwg

import "fmt"

// degenerateEps is the length/area threshold below which geometry is
// considered collapsed.
const degenerateEps = 1e-9

// vet checks an entity's geometry. It returns a warning when the entity
// should be skipped, or nil when the entity is usable.
func vet(e Entity, record int) *Warning {
	warn := func(code, format string, args ...any) *Warning {
		return &Warning{Code: code, Record: record, Message: fmt.Sprintf(format, args...)}
	}

	switch data := e.Data.(type) {
	case LineData:
		if data.Length() < degenerateEps {
			return warn(WarnDegenerateLine, "line %s has coincident endpoints", e.Handle)
		}

	case PolylineData:
		if data.Closed {
			if len(data.Points) < 3 {
				return warn(WarnShortPolyline, "closed polyline %s has %d points, need 3", e.Handle, len(data.Points))
			}
			if data.Area() < degenerateEps {
				return warn(WarnFlatOutline, "closed polyline %s encloses no area", e.Handle)
			}
		} else if len(data.Points) < 2 {
			return warn(WarnShortPolyline, "polyline %s has %d points, need 2", e.Handle, len(data.Points))
		}

	case CircleData:
		if data.Radius <= 0 {
			return warn(WarnBadRadius, "circle %s has radius %g", e.Handle, data.Radius)
		}

	case ArcData:
		if data.Radius <= 0 {
			return warn(WarnBadRadius, "arc %s has radius %g", e.Handle, data.Radius)
		}

	case nil:
		return warn(WarnUnknownKind, "entity %s has no payload", e.Handle)

	default:
		return warn(WarnUnknownKind, "entity %s has unsupported payload %T", e.Handle, e.Data)
	}
	return nil
}

// FromEntities builds a validated Drawing from in-memory entities, applying
// the same skip-with-warning rules as Decode. Entities without handles get
// positional ones. It fails only when no entity survives validation.
func FromEntities(entities []Entity) (*Drawing, error) {
	d := New()
	for i, e := range entities {
		if e.Handle == "" {
			e.Handle = fmt.Sprintf("%X", i+1)
		}
		if warn := vet(e, i); warn != nil {
			d.Warnings = append(d.Warnings, *warn)
			continue
		}
		d.Add(e)
	}
	if len(d.Entities) == 0 {
		reasons := []string{"no usable entities"}
		for _, w := range d.Warnings {
			reasons = append(reasons, w.String())
		}
		return nil, &ParseError{Reasons: reasons}
	}
	return d, nil
}
