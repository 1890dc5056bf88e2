package compose

import (
	"errors"
	"fmt"
	"strings"
)

// Page settings validation errors.
var (
	ErrInvalidPageSize    = errors.New("invalid page size")
	ErrInvalidOrientation = errors.New("invalid orientation")
	ErrInvalidUnit        = errors.New("invalid unit")
)

// Named page sizes in millimetres, portrait
var namedSizes = map[string][2]float64{
	"a3":     {297, 420},
	"a4":     {210, 297},
	"a5":     {148, 210},
	"letter": {215.9, 279.4},
	"legal":  {215.9, 355.6},
}

// Units per millimetre
var unitScale = map[string]float64{
	"mm": 1,
	"cm": 0.1,
	"in": 1 / 25.4,
	"pt": 72 / 25.4,
}

// PageSize is the fixed size of every page, expressed in Unit
type PageSize struct {
	Width  float64
	Height float64
	Unit   string
}

// ResolvePageSize turns a named size (or custom width/height in mm when name
// is empty) plus orientation into a PageSize in the requested unit.
func ResolvePageSize(name, orientation, unit string, customWidth, customHeight float64) (PageSize, error) {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if unit == "" {
		unit = "mm"
	}
	scale, ok := unitScale[unit]
	if !ok {
		return PageSize{}, fmt.Errorf("%w: %q (use mm, cm, in or pt)", ErrInvalidUnit, unit)
	}

	var w, h float64
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "" || name == "custom":
		if customWidth <= 0 || customHeight <= 0 {
			return PageSize{}, fmt.Errorf("%w: custom size needs positive width and height", ErrInvalidPageSize)
		}
		w, h = customWidth, customHeight
	default:
		dims, ok := namedSizes[name]
		if !ok {
			return PageSize{}, fmt.Errorf("%w: %q", ErrInvalidPageSize, name)
		}
		w, h = dims[0], dims[1]
	}

	switch strings.ToLower(strings.TrimSpace(orientation)) {
	case "", "portrait", "p":
		if w > h {
			w, h = h, w
		}
	case "landscape", "l":
		if h > w {
			w, h = h, w
		}
	default:
		return PageSize{}, fmt.Errorf("%w: %q", ErrInvalidOrientation, orientation)
	}

	return PageSize{Width: w * scale, Height: h * scale, Unit: unit}, nil
}

// A4 is the default page size
func A4() PageSize {
	return PageSize{Width: 210, Height: 297, Unit: "mm"}
}
