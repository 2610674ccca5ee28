package dwg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Binary record stream layout (all integers little-endian):
//
//	magic   [4]byte  "SDWG"
//	version uint16
//	count   uint32   number of records
//
// followed by count records, each length-prefixed:
//
//	length  uint32   payload bytes that follow
//	kind    uint8
//	layer   uint8 length + bytes
//	flags   uint8    bit0: closed
//	points  uint16 count, then count x (float64 x, float64 y)
//	radius  float64  circles and arcs only (center is points[0])
//	angles  2 x float64  arcs only: start, end in degrees
//
// Length prefixes let the decoder skip a malformed record and keep framing.
const (
	codecMagic   = "SDWG"
	codecVersion = 1

	flagClosed = 1 << 0

	maxRecordBytes = 16 << 20
	maxRecords     = 1 << 20
)

// Decode reads a drawing from the binary record stream. Records that cannot
// be parsed are skipped with a warning; the decoder fails only when the
// header is unreadable or no record yields a usable entity.
func Decode(r io.Reader) (*Drawing, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, &ParseError{Reasons: []string{fmt.Sprintf("read magic: %v", err)}}
	}
	if string(magic[:]) != codecMagic {
		return nil, &ParseError{Reasons: []string{fmt.Sprintf("bad magic %q", magic[:])}}
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, &ParseError{Reasons: []string{fmt.Sprintf("read version: %v", err)}}
	}
	if version != codecVersion {
		return nil, &ParseError{Reasons: []string{fmt.Sprintf("unsupported version %d", version)}}
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, &ParseError{Reasons: []string{fmt.Sprintf("read record count: %v", err)}}
	}
	if count > maxRecords {
		return nil, &ParseError{Reasons: []string{fmt.Sprintf("record count %d exceeds limit", count)}}
	}

	d := New()
	for i := 0; i < int(count); i++ {
		var length uint32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			d.Warn(WarnTruncatedRecord, i, fmt.Sprintf("read length: %v", err))
			break
		}
		if length > maxRecordBytes {
			d.Warn(WarnTruncatedRecord, i, fmt.Sprintf("record length %d exceeds limit", length))
			break
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			d.Warn(WarnTruncatedRecord, i, fmt.Sprintf("read payload: %v", err))
			break
		}

		e, warn := decodeRecord(payload, i)
		if warn != nil {
			d.Warnings = append(d.Warnings, *warn)
			continue
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

// DecodeBytes decodes a drawing from an in-memory record stream.
func DecodeBytes(b []byte) (*Drawing, error) {
	return Decode(bytes.NewReader(b))
}

// decodeRecord parses one record payload. The entity handle is synthesized
// from the record index.
func decodeRecord(payload []byte, record int) (Entity, *Warning) {
	fail := func(format string, args ...any) (Entity, *Warning) {
		return Entity{}, &Warning{
			Code:    WarnTruncatedRecord,
			Record:  record,
			Message: fmt.Sprintf(format, args...),
		}
	}

	r := bytes.NewReader(payload)

	var kind uint8
	if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return fail("read kind: %v", err)
	}

	var layerLen uint8
	if err := binary.Read(r, binary.LittleEndian, &layerLen); err != nil {
		return fail("read layer length: %v", err)
	}
	layer := make([]byte, layerLen)
	if _, err := io.ReadFull(r, layer); err != nil {
		return fail("read layer: %v", err)
	}

	var flags uint8
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return fail("read flags: %v", err)
	}

	var pointCount uint16
	if err := binary.Read(r, binary.LittleEndian, &pointCount); err != nil {
		return fail("read point count: %v", err)
	}
	points := make([]Point, pointCount)
	for i := range points {
		if err := binary.Read(r, binary.LittleEndian, &points[i].X); err != nil {
			return fail("read point %d x: %v", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &points[i].Y); err != nil {
			return fail("read point %d y: %v", i, err)
		}
	}

	e := Entity{
		Handle: fmt.Sprintf("%X", record+1),
		Layer:  string(layer),
	}

	switch EntityKind(kind) {
	case EntityLine:
		if len(points) < 2 {
			return fail("line needs 2 points, got %d", len(points))
		}
		e.Kind = EntityLine
		e.Data = LineData{Start: points[0], End: points[1]}

	case EntityPolyline:
		e.Kind = EntityPolyline
		e.Data = PolylineData{Points: points, Closed: flags&flagClosed != 0}

	case EntityCircle:
		if len(points) < 1 {
			return fail("circle needs a center point")
		}
		var radius float64
		if err := binary.Read(r, binary.LittleEndian, &radius); err != nil {
			return fail("read radius: %v", err)
		}
		e.Kind = EntityCircle
		e.Data = CircleData{Center: points[0], Radius: radius}

	case EntityArc:
		if len(points) < 1 {
			return fail("arc needs a center point")
		}
		var radius, start, end float64
		if err := binary.Read(r, binary.LittleEndian, &radius); err != nil {
			return fail("read radius: %v", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &start); err != nil {
			return fail("read start angle: %v", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &end); err != nil {
			return fail("read end angle: %v", err)
		}
		e.Kind = EntityArc
		e.Data = ArcData{Center: points[0], Radius: radius, StartAngle: start, EndAngle: end}

	default:
		return Entity{}, &Warning{
			Code:    WarnUnknownKind,
			Record:  record,
			Message: fmt.Sprintf("unknown entity kind %d", kind),
		}
	}

	return e, nil
}

// Encode writes the drawing in the binary record stream format.
func (d *Drawing) Encode(w io.Writer) error {
	if _, err := w.Write([]byte(codecMagic)); err != nil {
		return fmt.Errorf("dwg: write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(codecVersion)); err != nil {
		return fmt.Errorf("dwg: write version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(d.Entities))); err != nil {
		return fmt.Errorf("dwg: write count: %w", err)
	}

	for i, e := range d.Entities {
		payload, err := encodeRecord(e)
		if err != nil {
			return fmt.Errorf("dwg: record %d: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(payload))); err != nil {
			return fmt.Errorf("dwg: record %d length: %w", i, err)
		}
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("dwg: record %d payload: %w", i, err)
		}
	}
	return nil
}

func encodeRecord(e Entity) ([]byte, error) {
	if len(e.Layer) > 255 {
		return nil, fmt.Errorf("layer name %q too long", e.Layer)
	}

	var points []Point
	var flags uint8
	var tail []float64

	switch data := e.Data.(type) {
	case LineData:
		points = []Point{data.Start, data.End}
	case PolylineData:
		points = data.Points
		if data.Closed {
			flags |= flagClosed
		}
	case CircleData:
		points = []Point{data.Center}
		tail = []float64{data.Radius}
	case ArcData:
		points = []Point{data.Center}
		tail = []float64{data.Radius, data.StartAngle, data.EndAngle}
	default:
		return nil, fmt.Errorf("unsupported entity data %T", e.Data)
	}
	if len(points) > 0xFFFF {
		return nil, fmt.Errorf("too many points: %d", len(points))
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(e.Kind))
	buf.WriteByte(byte(len(e.Layer)))
	buf.WriteString(e.Layer)
	buf.WriteByte(flags)
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(points))); err != nil {
		return nil, err
	}
	for _, p := range points {
		if err := binary.Write(&buf, binary.LittleEndian, p.X); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, p.Y); err != nil {
			return nil, err
		}
	}
	for _, v := range tail {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
