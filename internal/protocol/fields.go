package protocol

import (
	"vizbridged/pkg/types"
)

// fields is one decoded instruction object. All accessors are tolerant:
// wrong-typed values read as absent, and callers decide whether absence
// drops the instruction or falls back to a default.
type fields map[string]any

func (f fields) num(key string) (float64, bool) {
	v, ok := f[key].(float64)
	return v, ok
}

func (f fields) numOr(key string, def float64) float64 {
	if v, ok := f.num(key); ok {
		return v
	}
	return def
}

func (f fields) str(key string) (string, bool) {
	v, ok := f[key].(string)
	return v, ok
}

func (f fields) boolean(key string) bool {
	v, _ := f[key].(bool)
	return v
}

// color reads a packed ARGB colour. JSON numbers arrive as float64; values
// outside the 32-bit range are truncated into it.
func (f fields) color(key string) (types.Color, bool) {
	v, ok := f.num(key)
	if !ok {
		return 0, false
	}
	return types.Color(uint32(int64(v))), true
}

// thickness reads the optional stroke width, default 1, clamped non-negative.
func (f fields) thickness() float64 {
	return nonNeg(f.numOr("thickness", 1))
}

// rect reads the required x/y/w/h quad, clamping sizes non-negative.
func (f fields) rect() (x, y, w, h float64, err error) {
	var ok [4]bool
	x, ok[0] = f.num("x")
	y, ok[1] = f.num("y")
	w, ok[2] = f.num("w")
	h, ok[3] = f.num("h")
	if !ok[0] || !ok[1] || !ok[2] || !ok[3] {
		return 0, 0, 0, 0, missing("x/y/w/h")
	}
	return x, y, nonNeg(w), nonNeg(h), nil
}

func (f fields) circle() (cx, cy, r float64, col types.Color, err error) {
	var ok [3]bool
	cx, ok[0] = f.num("cx")
	cy, ok[1] = f.num("cy")
	r, ok[2] = f.num("radius")
	if !ok[0] || !ok[1] || !ok[2] {
		return 0, 0, 0, 0, missing("cx/cy/radius")
	}
	col, colOK := f.color("color")
	if !colOK {
		return 0, 0, 0, 0, missing("color")
	}
	return cx, cy, nonNeg(r), col, nil
}

func (f fields) arc() (cx, cy, r, start, end float64, col types.Color, err error) {
	var ok [5]bool
	cx, ok[0] = f.num("cx")
	cy, ok[1] = f.num("cy")
	r, ok[2] = f.num("radius")
	start, ok[3] = f.num("start")
	end, ok[4] = f.num("end")
	if !ok[0] || !ok[1] || !ok[2] || !ok[3] || !ok[4] {
		return 0, 0, 0, 0, 0, 0, missing("cx/cy/radius/start/end")
	}
	col, colOK := f.color("color")
	if !colOK {
		return 0, 0, 0, 0, 0, 0, missing("color")
	}
	return cx, cy, nonNeg(r), start, end, col, nil
}

// points reads a [[x,y], ...] array. Entries that are not two-element
// numeric pairs are skipped.
func (f fields) points(key string) ([]types.Point, bool) {
	arr, ok := f[key].([]any)
	if !ok {
		return nil, false
	}
	pts := make([]types.Point, 0, len(arr))
	for _, e := range arr {
		pair, ok := e.([]any)
		if !ok || len(pair) < 2 {
			continue
		}
		x, ok1 := pair[0].(float64)
		y, ok2 := pair[1].(float64)
		if !ok1 || !ok2 {
			continue
		}
		pts = append(pts, types.Point{X: x, Y: y})
	}
	return pts, true
}

// pair reads a two-component value sent either as a [x,y] array under key
// or as two scalar fields (legacy form).
func (f fields) pair(key, keyX, keyY string, def float64) (float64, float64) {
	if arr, ok := f[key].([]any); ok && len(arr) >= 2 {
		x, ok1 := arr[0].(float64)
		y, ok2 := arr[1].(float64)
		if ok1 && ok2 {
			return x, y
		}
	}
	return f.numOr(keyX, def), f.numOr(keyY, def)
}

func (f fields) font(key string) types.FontSpec {
	spec := types.FontSpec{Size: 12}
	obj, ok := f[key].(map[string]any)
	if !ok {
		return spec
	}
	ff := fields(obj)
	if fam, ok := ff.str("family"); ok {
		spec.Family = fam
	}
	if size, ok := ff.num("size"); ok && size > 0 {
		spec.Size = size
	}
	spec.Bold = ff.boolean("bold")
	spec.Italic = ff.boolean("italic")
	return spec
}

func (f fields) align(key string) types.TextAlign {
	switch s, _ := f.str(key); types.TextAlign(s) {
	case types.AlignCenter, types.AlignRight:
		return types.TextAlign(s)
	default:
		return types.AlignLeft
	}
}

// gradient reads either the structured gradient object or the legacy
// color1/color2/direction form, anchored to the command's rectangle.
func (f fields) gradient(x, y, w, h float64) (types.Gradient, error) {
	if obj, ok := f["gradient"].(map[string]any); ok {
		gf := fields(obj)
		stopsRaw, ok := obj["stops"].([]any)
		if !ok || len(stopsRaw) == 0 {
			return types.Gradient{}, missing("gradient.stops")
		}
		g := types.Gradient{
			X1:     gf.numOr("x1", x),
			Y1:     gf.numOr("y1", y),
			X2:     gf.numOr("x2", x+w),
			Y2:     gf.numOr("y2", y),
			Radial: gf.boolean("radial"),
		}
		for _, s := range stopsRaw {
			pair, ok := s.([]any)
			if !ok || len(pair) < 2 {
				continue
			}
			pos, ok1 := pair[0].(float64)
			colNum, ok2 := pair[1].(float64)
			if !ok1 || !ok2 {
				continue
			}
			g.Stops = append(g.Stops, types.GradientStop{
				Position: clamp01(pos),
				Color:    types.Color(uint32(int64(colNum))),
			})
		}
		if len(g.Stops) == 0 {
			return types.Gradient{}, missing("gradient.stops")
		}
		return g, nil
	}

	c1, ok1 := f.color("color1")
	c2, ok2 := f.color("color2")
	if !ok1 || !ok2 {
		return types.Gradient{}, missing("gradient or color1/color2")
	}
	dir, _ := f.str("direction")
	g := types.Gradient{
		Stops: []types.GradientStop{{Position: 0, Color: c1}, {Position: 1, Color: c2}},
		X1:    x, Y1: y,
	}
	if dir == "vertical" {
		g.X2, g.Y2 = x, y+h
	} else {
		g.X2, g.Y2 = x+w, y
	}
	return g, nil
}
