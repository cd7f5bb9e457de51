package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// Wellplate describes plate geometry in stage coordinates.
type Wellplate struct {
	Name       string
	Rows       int
	Cols       int
	SpacingMM  float64
	WellSizeMM float64
	A1XMM      float64
	A1YMM      float64
	OffsetXMM  float64
	OffsetYMM  float64
}

var wellplates = map[string]Wellplate{
	"6":    {Name: "6", Rows: 2, Cols: 3, SpacingMM: 39.2, WellSizeMM: 34.94, A1XMM: 24.55, A1YMM: 23.01},
	"12":   {Name: "12", Rows: 3, Cols: 4, SpacingMM: 26, WellSizeMM: 22.05, A1XMM: 24.75, A1YMM: 16.86},
	"24":   {Name: "24", Rows: 4, Cols: 6, SpacingMM: 19.3, WellSizeMM: 15.54, A1XMM: 24.45, A1YMM: 22.07},
	"96":   {Name: "96", Rows: 8, Cols: 12, SpacingMM: 9, WellSizeMM: 6.21, A1XMM: 11.31, A1YMM: 10.75},
	"384":  {Name: "384", Rows: 16, Cols: 24, SpacingMM: 4.5, WellSizeMM: 3.3, A1XMM: 12.05, A1YMM: 9.05},
	"1536": {Name: "1536", Rows: 32, Cols: 48, SpacingMM: 2.25, WellSizeMM: 1.5, A1XMM: 11.0, A1YMM: 7.86},
}

// LookupWellplate returns a standard plate format by name ("96", "384", ...).
func LookupWellplate(name string) (Wellplate, error) {
	wp, ok := wellplates[name]
	if !ok {
		return Wellplate{}, fmt.Errorf("unknown wellplate format %q", name)
	}
	return wp, nil
}

// ParseWellID converts "B3" or "AA12" into zero-based row and column.
func ParseWellID(id string) (row, col int, err error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	i := 0
	for i < len(id) && id[i] >= 'A' && id[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(id) {
		return 0, 0, fmt.Errorf("invalid well id %q", id)
	}
	for _, ch := range id[:i] {
		row = row*26 + int(ch-'A'+1)
	}
	row--
	n, err := strconv.Atoi(id[i:])
	if err != nil || n < 1 {
		return 0, 0, fmt.Errorf("invalid well id %q", id)
	}
	return row, n - 1, nil
}

// WellID formats a zero-based row and column.
func WellID(row, col int) string {
	var letters []byte
	for r := row + 1; r > 0; r = (r - 1) / 26 {
		letters = append([]byte{byte('A' + (r-1)%26)}, letters...)
	}
	return string(letters) + strconv.Itoa(col+1)
}

// WellCenter returns the stage coordinates of a well centre.
func (w Wellplate) WellCenter(id string) (x, y float64, err error) {
	row, col, err := ParseWellID(id)
	if err != nil {
		return 0, 0, err
	}
	if row >= w.Rows || col >= w.Cols {
		return 0, 0, fmt.Errorf("well %s outside %d-well plate", id, w.Rows*w.Cols)
	}
	x = w.A1XMM + float64(col)*w.SpacingMM + w.OffsetXMM
	y = w.A1YMM + float64(row)*w.SpacingMM + w.OffsetYMM
	return x, y, nil
}

// WellRegions builds one region per well, in the order given.
func (w Wellplate) WellRegions(ids []string, g GridSpec) ([]Region, error) {
	out := make([]Region, 0, len(ids))
	for _, id := range ids {
		x, y, err := w.WellCenter(id)
		if err != nil {
			return nil, err
		}
		spec := g
		spec.CenterX, spec.CenterY = x, y
		out = append(out, GridRegion(strings.ToUpper(id), spec))
	}
	return out, nil
}
