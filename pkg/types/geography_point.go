package types

import (
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	wkbPointType = 1
	ewkbSRIDFlag = 0x20000000
	wkbPointSize = 21
)

// GeographyPoint is a WGS84 coordinate stored in a PostGIS geography(Point,4326) column.
type GeographyPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate lies on the globe.
func (g GeographyPoint) Valid() bool {
	return g.Lat >= -90 && g.Lat <= 90 && g.Lng >= -180 && g.Lng <= 180 &&
		!math.IsNaN(g.Lat) && !math.IsNaN(g.Lng)
}

// Value writes EWKT; PostGIS casts it to geography on insert.
func (g GeographyPoint) Value() (driver.Value, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("geography: coordinate out of range (%v, %v)", g.Lat, g.Lng)
	}
	return "SRID=4326;POINT(" + formatCoord(g.Lng) + " " + formatCoord(g.Lat) + ")", nil
}

// Scan reads the hex EWKB PostGIS returns by default, raw (E)WKB bytes, or (E)WKT text.
func (g *GeographyPoint) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*g = GeographyPoint{}
		return nil
	case []byte:
		if len(v) > 0 && (v[0] == 0 || v[0] == 1) {
			return g.fromWKB(v)
		}
		return g.fromString(string(v))
	case string:
		return g.fromString(v)
	default:
		return fmt.Errorf("geography: unsupported scan type %T", value)
	}
}

func (g *GeographyPoint) fromString(raw string) error {
	raw = strings.TrimSpace(raw)
	if isHex(raw) {
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("geography: decode hex: %w", err)
		}
		return g.fromWKB(decoded)
	}
	return g.fromWKT(raw)
}

func (g *GeographyPoint) fromWKT(raw string) error {
	if i := strings.Index(raw, ";"); i != -1 && strings.HasPrefix(strings.ToUpper(raw), "SRID=") {
		raw = strings.TrimSpace(raw[i+1:])
	}
	upper := strings.ToUpper(raw)
	if !strings.HasPrefix(upper, "POINT") || !strings.HasSuffix(raw, ")") {
		return fmt.Errorf("geography: unsupported text %q", raw)
	}
	open := strings.Index(raw, "(")
	coords := strings.Fields(raw[open+1 : len(raw)-1])
	if len(coords) != 2 {
		return fmt.Errorf("geography: point needs two coordinates, got %q", raw)
	}
	lng, err := strconv.ParseFloat(coords[0], 64)
	if err != nil {
		return fmt.Errorf("geography: longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(coords[1], 64)
	if err != nil {
		return fmt.Errorf("geography: latitude: %w", err)
	}
	*g = GeographyPoint{Lat: lat, Lng: lng}
	return nil
}

func (g *GeographyPoint) fromWKB(raw []byte) error {
	if len(raw) < 5 {
		return fmt.Errorf("geography: wkb too short")
	}
	var order binary.ByteOrder = binary.BigEndian
	if raw[0] == 1 {
		order = binary.LittleEndian
	}
	kind := order.Uint32(raw[1:5])
	body := raw[5:]
	if kind&ewkbSRIDFlag != 0 {
		if len(body) < 4 {
			return fmt.Errorf("geography: ewkb missing srid")
		}
		body = body[4:]
		kind &^= ewkbSRIDFlag
	}
	if kind != wkbPointType {
		return fmt.Errorf("geography: unexpected geometry type %d", kind)
	}
	if len(body) < wkbPointSize-5 {
		return fmt.Errorf("geography: wkb too short")
	}
	*g = GeographyPoint{
		Lng: math.Float64frombits(order.Uint64(body[0:8])),
		Lat: math.Float64frombits(order.Uint64(body[8:16])),
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isHex(s string) bool {
	if len(s) < 2*wkbPointSize || len(s)%2 != 0 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
