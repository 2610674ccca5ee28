package dxf

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomech/stratum/pkg/dwg"
)

// tags joins group-code/value pairs into DXF tag stream form.
func tags(pairs ...string) string {
	return strings.Join(pairs, "\n") + "\n"
}

func sitePlanDXF() string {
	return tags(
		"0", "SECTION",
		"2", "ENTITIES",

		"0", "POLYLINE",
		"8", "EXCA_MAIN",
		"66", "1",
		"70", "1",
		"0", "VERTEX",
		"8", "EXCA_MAIN",
		"10", "0.0", "20", "0.0", "30", "0.0",
		"0", "VERTEX",
		"8", "EXCA_MAIN",
		"10", "30.0", "20", "0.0", "30", "0.0",
		"0", "VERTEX",
		"8", "EXCA_MAIN",
		"10", "30.0", "20", "20.0", "30", "0.0",
		"0", "VERTEX",
		"8", "EXCA_MAIN",
		"10", "0.0", "20", "20.0", "30", "0.0",
		"0", "SEQEND",

		"0", "LINE",
		"8", "WALL_D800",
		"10", "0.0", "20", "0.0", "30", "0.0",
		"11", "30.0", "21", "0.0", "31", "0.0",

		"0", "CIRCLE",
		"8", "PILE_A",
		"10", "5.0", "20", "5.0", "30", "0.0",
		"40", "0.4",

		"0", "ARC",
		"8", "ANCH_ROW1",
		"10", "15.0", "20", "10.0", "30", "0.0",
		"40", "12.0",
		"50", "0.0",
		"51", "90.0",

		"0", "ENDSEC",
		"0", "EOF",
	)
}

func TestImportSitePlan(t *testing.T) {
	d, err := Import(strings.NewReader(sitePlanDXF()))
	require.NoError(t, err)
	require.Equal(t, 4, d.EntityCount())

	outline, ok := d.MainOutline()
	require.True(t, ok, "expected a main outline")
	assert.Equal(t, "EXCA_MAIN", outline.Layer)

	pd := outline.Data.(dwg.PolylineData)
	assert.True(t, pd.Closed)
	assert.Len(t, pd.Points, 4)
	assert.InDelta(t, 600, pd.Area(), 1e-9)

	walls := d.OnLayer("WALL_D800")
	require.Len(t, walls, 1)
	ld := walls[0].Data.(dwg.LineData)
	assert.Equal(t, dwg.Point{X: 30, Y: 0}, ld.End)

	piles := d.OnLayer("PILE_A")
	require.Len(t, piles, 1)
	cd := piles[0].Data.(dwg.CircleData)
	assert.InDelta(t, 0.4, cd.Radius, 1e-9)
	assert.Equal(t, dwg.Point{X: 5, Y: 5}, cd.Center)

	anchors := d.OnLayer("ANCH_ROW1")
	require.Len(t, anchors, 1)
	ad := anchors[0].Data.(dwg.ArcData)
	assert.InDelta(t, 0, ad.StartAngle, 1e-9)
	assert.InDelta(t, 90, ad.EndAngle, 1e-9)
}

func TestImportAssignsHandles(t *testing.T) {
	d, err := Import(strings.NewReader(sitePlanDXF()))
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, e := range d.Entities {
		assert.NotEmpty(t, e.Handle)
		assert.False(t, seen[e.Handle], "duplicate handle %q", e.Handle)
		seen[e.Handle] = true
	}
}

func TestImportClosesDuplicateEndVertex(t *testing.T) {
	// An open-flag trace that returns to its start is still a closed outline;
	// the duplicate end vertex is dropped.
	doc := tags(
		"0", "SECTION",
		"2", "ENTITIES",
		"0", "POLYLINE",
		"8", "SITE",
		"66", "1",
		"0", "VERTEX", "8", "SITE", "10", "0.0", "20", "0.0", "30", "0.0",
		"0", "VERTEX", "8", "SITE", "10", "10.0", "20", "0.0", "30", "0.0",
		"0", "VERTEX", "8", "SITE", "10", "10.0", "20", "10.0", "30", "0.0",
		"0", "VERTEX", "8", "SITE", "10", "0.0", "20", "0.0", "30", "0.0",
		"0", "SEQEND",
		"0", "ENDSEC",
		"0", "EOF",
	)

	d, err := Import(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, 1, d.EntityCount())

	pd := d.Entities[0].Data.(dwg.PolylineData)
	assert.True(t, pd.Closed)
	assert.Len(t, pd.Points, 3)
}

func TestImportKeepsGenericTraceOpen(t *testing.T) {
	doc := tags(
		"0", "SECTION",
		"2", "ENTITIES",
		"0", "POLYLINE",
		"8", "SITE",
		"66", "1",
		"0", "VERTEX", "8", "SITE", "10", "0.0", "20", "0.0", "30", "0.0",
		"0", "VERTEX", "8", "SITE", "10", "10.0", "20", "0.0", "30", "0.0",
		"0", "VERTEX", "8", "SITE", "10", "10.0", "20", "10.0", "30", "0.0",
		"0", "SEQEND",
		"0", "ENDSEC",
		"0", "EOF",
	)

	d, err := Import(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, 1, d.EntityCount())

	pd := d.Entities[0].Data.(dwg.PolylineData)
	assert.False(t, pd.Closed, "generic-layer trace without a return vertex stays open")
}

func TestImportWarnsOnUnsupportedEntity(t *testing.T) {
	doc := tags(
		"0", "SECTION",
		"2", "ENTITIES",
		"0", "LINE",
		"8", "WALL",
		"10", "0.0", "20", "0.0", "30", "0.0",
		"11", "5.0", "21", "0.0", "31", "0.0",
		"0", "SPLINE",
		"8", "EXCA_EDGE",
		"70", "8",
		"71", "3",
		"10", "0.0", "20", "0.0", "30", "0.0",
		"10", "5.0", "20", "5.0", "30", "0.0",
		"0", "ENDSEC",
		"0", "EOF",
	)

	d, err := Import(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, d.EntityCount())

	require.NotEmpty(t, d.Warnings)
	found := false
	for _, w := range d.Warnings {
		if w.Code == dwg.WarnUnsupportedShape {
			found = true
		}
	}
	assert.True(t, found, "expected an unsupported-shape warning, got %v", d.Warnings)
}

func TestImportFailsWhenNothingConvertible(t *testing.T) {
	doc := tags(
		"0", "SECTION",
		"2", "ENTITIES",
		"0", "SPLINE",
		"8", "EXCA_EDGE",
		"70", "8",
		"71", "3",
		"10", "0.0", "20", "0.0", "30", "0.0",
		"0", "ENDSEC",
		"0", "EOF",
	)

	_, err := Import(strings.NewReader(doc))
	require.Error(t, err)

	var pe *dwg.ParseError
	require.True(t, errors.As(err, &pe))
	assert.NotEmpty(t, pe.Reasons)
}

func TestImportRejectsGarbage(t *testing.T) {
	_, err := Import(strings.NewReader("not a dxf file"))
	require.Error(t, err)
}
