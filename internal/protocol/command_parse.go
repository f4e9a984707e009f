package protocol

import (
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/rs/zerolog"

	"vizbridged/pkg/types"
)

// ParseStats summarizes what happened to one command buffer.
type ParseStats struct {
	// Total instructions seen in the message.
	Total int
	// Dropped instructions (missing required field, bad uniform-only shader).
	Dropped int
	// Unknown discriminators skipped for forward compatibility.
	Unknown int
	// Unbalanced counts state-stack repairs (excess pops dropped plus
	// missing pops appended).
	Unbalanced int
}

// CommandParser decodes the "commands" array of a render_commands message
// into typed instructions. It never panics on malformed input: a message
// that fails to tokenize yields no commands and a malformed error; a single
// bad instruction is dropped and the rest of the buffer survives.
type CommandParser struct {
	log zerolog.Logger
}

// NewCommandParser returns a parser reporting diagnostics through log.
func NewCommandParser(log zerolog.Logger) *CommandParser {
	return &CommandParser{log: log}
}

// Parse decodes raw (the JSON array of instruction objects) into an ordered
// command sequence. The returned error is non-nil only when the whole
// message fails to tokenize; per-instruction problems are handled by
// dropping or clamping and counted in ParseStats.
func (p *CommandParser) Parse(raw json.RawMessage) ([]types.Command, ParseStats, error) {
	var stats ParseStats
	if len(raw) == 0 {
		return nil, stats, nil
	}
	var objs []fields
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil, stats, ErrMalformed(err.Error())
	}
	stats.Total = len(objs)

	cmds := make([]types.Command, 0, len(objs))
	var clipDepth, transformDepth, stateDepth int
	for _, f := range objs {
		kind, ok := f.str("cmd")
		if !ok {
			stats.Dropped++
			p.log.Warn().Msg("instruction without cmd discriminator dropped")
			continue
		}
		cmd, err := p.decodeOne(kind, f)
		if err != nil {
			if IsUnknownKind(err) {
				stats.Unknown++
				p.log.Warn().Str("cmd", kind).Msg("unknown instruction kind skipped")
			} else {
				stats.Dropped++
				p.log.Warn().Str("cmd", kind).Err(err).Msg("instruction dropped")
			}
			continue
		}

		// Keep the state stacks balanced: an excess pop is dropped here,
		// missing pops are appended after the loop.
		switch cmd.Kind() {
		case types.KindSetClip:
			clipDepth++
		case types.KindResetClip:
			if clipDepth == 0 {
				stats.Unbalanced++
				continue
			}
			clipDepth--
		case types.KindPushTransform:
			transformDepth++
		case types.KindPopTransform:
			if transformDepth == 0 {
				stats.Unbalanced++
				continue
			}
			transformDepth--
		case types.KindSaveState:
			stateDepth++
		case types.KindRestoreState:
			if stateDepth == 0 {
				stats.Unbalanced++
				continue
			}
			stateDepth--
		}
		cmds = append(cmds, cmd)
	}

	for ; clipDepth > 0; clipDepth-- {
		cmds = append(cmds, types.ResetClip{})
		stats.Unbalanced++
	}
	for ; transformDepth > 0; transformDepth-- {
		cmds = append(cmds, types.PopTransform{})
		stats.Unbalanced++
	}
	for ; stateDepth > 0; stateDepth-- {
		cmds = append(cmds, types.RestoreState{})
		stats.Unbalanced++
	}
	if stats.Unbalanced > 0 {
		p.log.Warn().Int("repairs", stats.Unbalanced).
			Err(ErrUnbalancedStack("frame repaired")).
			Msg("state stack unbalanced within frame")
	}
	return cmds, stats, nil
}

// unknownKindError marks a discriminator this parser revision does not know.
type unknownKindError struct{ kind string }

func (e unknownKindError) Error() string { return "unknown instruction kind: " + e.kind }

// IsUnknownKind reports whether err indicates a skippable unknown kind.
func IsUnknownKind(err error) bool {
	_, ok := err.(unknownKindError)
	return ok
}

func missing(field string) error { return fmt.Errorf("missing required field %q", field) }

func (p *CommandParser) decodeOne(kind string, f fields) (types.Command, error) {
	switch kind {
	case "clear":
		col, ok := f.color("color")
		if !ok {
			return nil, missing("color")
		}
		return types.Clear{Color: col}, nil

	case "fill_rect":
		x, y, w, h, err := f.rect()
		if err != nil {
			return nil, err
		}
		col, ok := f.color("color")
		if !ok {
			return nil, missing("color")
		}
		return types.FillRect{X: x, Y: y, W: w, H: h, Color: col}, nil

	case "stroke_rect":
		x, y, w, h, err := f.rect()
		if err != nil {
			return nil, err
		}
		col, ok := f.color("color")
		if !ok {
			return nil, missing("color")
		}
		return types.StrokeRect{X: x, Y: y, W: w, H: h, Color: col,
			Thickness: f.thickness()}, nil

	case "fill_rounded_rect":
		x, y, w, h, err := f.rect()
		if err != nil {
			return nil, err
		}
		col, ok := f.color("color")
		if !ok {
			return nil, missing("color")
		}
		return types.FillRoundedRect{X: x, Y: y, W: w, H: h,
			Radius: nonNeg(f.numOr("radius", 0)), Color: col}, nil

	case "stroke_rounded_rect":
		x, y, w, h, err := f.rect()
		if err != nil {
			return nil, err
		}
		col, ok := f.color("color")
		if !ok {
			return nil, missing("color")
		}
		return types.StrokeRoundedRect{X: x, Y: y, W: w, H: h,
			Radius: nonNeg(f.numOr("radius", 0)), Color: col,
			Thickness: f.thickness()}, nil

	case "fill_ellipse":
		cx, ok1 := f.num("cx")
		cy, ok2 := f.num("cy")
		rx, ok3 := f.num("rx")
		ry, ok4 := f.num("ry")
		col, ok5 := f.color("color")
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, missing("cx/cy/rx/ry")
		}
		if !ok5 {
			return nil, missing("color")
		}
		return types.FillEllipse{CX: cx, CY: cy, RX: nonNeg(rx), RY: nonNeg(ry), Color: col}, nil

	case "stroke_ellipse":
		cx, ok1 := f.num("cx")
		cy, ok2 := f.num("cy")
		rx, ok3 := f.num("rx")
		ry, ok4 := f.num("ry")
		col, ok5 := f.color("color")
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, missing("cx/cy/rx/ry")
		}
		if !ok5 {
			return nil, missing("color")
		}
		return types.StrokeEllipse{CX: cx, CY: cy, RX: nonNeg(rx), RY: nonNeg(ry),
			Color: col, Thickness: f.thickness()}, nil

	case "fill_circle":
		cx, cy, r, col, err := f.circle()
		if err != nil {
			return nil, err
		}
		return types.FillCircle{CX: cx, CY: cy, Radius: r, Color: col}, nil

	case "stroke_circle":
		cx, cy, r, col, err := f.circle()
		if err != nil {
			return nil, err
		}
		return types.StrokeCircle{CX: cx, CY: cy, Radius: r, Color: col,
			Thickness: f.thickness()}, nil

	case "draw_line":
		x1, ok1 := f.num("x1")
		y1, ok2 := f.num("y1")
		x2, ok3 := f.num("x2")
		y2, ok4 := f.num("y2")
		col, ok5 := f.color("color")
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, missing("x1/y1/x2/y2")
		}
		if !ok5 {
			return nil, missing("color")
		}
		return types.DrawLine{X1: x1, Y1: y1, X2: x2, Y2: y2, Color: col,
			Thickness: f.thickness()}, nil

	case "draw_polyline":
		pts, ok := f.points("points")
		if !ok || len(pts) < 2 {
			return nil, missing("points")
		}
		col, ok := f.color("color")
		if !ok {
			return nil, missing("color")
		}
		return types.DrawPolyline{Points: pts, Color: col, Thickness: f.thickness()}, nil

	case "draw_path":
		pts, ok := f.points("points")
		if !ok || len(pts) < 2 {
			return nil, missing("points")
		}
		col, ok := f.color("color")
		if !ok {
			return nil, missing("color")
		}
		return types.DrawPath{Points: pts, Closed: f.boolean("closed"),
			Color: col, Thickness: f.thickness()}, nil

	case "fill_path":
		pts, ok := f.points("points")
		if !ok || len(pts) < 3 {
			return nil, missing("points")
		}
		col, ok := f.color("color")
		if !ok {
			return nil, missing("color")
		}
		return types.FillPath{Points: pts, Color: col}, nil

	case "draw_bezier":
		req := []string{"x1", "y1", "cx1", "cy1", "cx2", "cy2", "x2", "y2"}
		vals := make([]float64, len(req))
		for i, k := range req {
			v, ok := f.num(k)
			if !ok {
				return nil, missing(k)
			}
			vals[i] = v
		}
		col, ok := f.color("color")
		if !ok {
			return nil, missing("color")
		}
		return types.DrawBezier{X1: vals[0], Y1: vals[1], CX1: vals[2], CY1: vals[3],
			CX2: vals[4], CY2: vals[5], X2: vals[6], Y2: vals[7],
			Color: col, Thickness: f.thickness()}, nil

	case "draw_arc":
		cx, cy, r, start, end, col, err := f.arc()
		if err != nil {
			return nil, err
		}
		return types.DrawArc{CX: cx, CY: cy, Radius: r, Start: start, End: end,
			Color: col, Thickness: f.thickness()}, nil

	case "fill_arc":
		cx, cy, r, start, end, col, err := f.arc()
		if err != nil {
			return nil, err
		}
		return types.FillArc{CX: cx, CY: cy, Radius: r, Start: start, End: end,
			Color: col}, nil

	case "draw_text":
		text, ok := f.str("text")
		if !ok {
			return nil, missing("text")
		}
		x, ok1 := f.num("x")
		y, ok2 := f.num("y")
		if !ok1 || !ok2 {
			return nil, missing("x/y")
		}
		col, ok := f.color("color")
		if !ok {
			return nil, missing("color")
		}
		return types.DrawText{Text: text, X: x, Y: y,
			W: nonNeg(f.numOr("w", 0)), H: nonNeg(f.numOr("h", 0)),
			Color: col, Font: f.font("font"), Align: f.align("align")}, nil

	case "draw_image":
		src, _ := f.str("src")
		key, _ := f.str("key")
		if src == "" && key == "" {
			return nil, missing("src or key")
		}
		x, y, w, h, err := f.rect()
		if err != nil {
			return nil, err
		}
		return types.DrawImage{Src: src, ImageKey: key, X: x, Y: y, W: w, H: h}, nil

	case "fill_gradient_rect":
		x, y, w, h, err := f.rect()
		if err != nil {
			return nil, err
		}
		grad, err := f.gradient(x, y, w, h)
		if err != nil {
			return nil, err
		}
		return types.FillGradientRect{X: x, Y: y, W: w, H: h, Gradient: grad}, nil

	case "set_clip":
		x, y, w, h, err := f.rect()
		if err != nil {
			return nil, err
		}
		return types.SetClip{X: x, Y: y, W: w, H: h}, nil

	case "reset_clip":
		return types.ResetClip{}, nil

	case "push_transform":
		tx, ty := f.pair("translate", "translate_x", "translate_y", 0)
		sx, sy := f.pair("scale", "scale_x", "scale_y", 1)
		return types.PushTransform{TranslateX: tx, TranslateY: ty,
			Rotate: f.numOr("rotate", 0), ScaleX: sx, ScaleY: sy}, nil

	case "pop_transform":
		return types.PopTransform{}, nil

	case "save_state":
		return types.SaveState{}, nil

	case "restore_state":
		return types.RestoreState{}, nil

	case "set_opacity":
		op, ok := f.num("opacity")
		if !ok {
			return nil, missing("opacity")
		}
		return types.SetOpacity{Opacity: clamp01(op)}, nil

	case "set_blend_mode":
		mode, ok := f.str("mode")
		if !ok {
			return nil, missing("mode")
		}
		return types.SetBlendMode{Mode: parseBlendMode(mode)}, nil

	case "draw_shader":
		id, ok := f.str("shader_id")
		if !ok || id == "" {
			return nil, missing("shader_id")
		}
		return types.DrawShader{ShaderID: id, Uniforms: p.uniforms(f, id)}, nil

	case "draw_custom_shader":
		frag, _ := f.str("fragment_source")
		key, _ := f.str("cache_key")
		if frag == "" && key == "" {
			return nil, missing("fragment_source or cache_key")
		}
		if key == "" {
			key = sourceKey(frag)
		}
		bufSize := int(f.numOr("buffer_size", 4096))
		if bufSize < 64 {
			bufSize = 64
		}
		comp, _ := f.str("compute_source")
		return types.DrawCustomShader{
			CacheKey:       key,
			FragmentSource: frag,
			ComputeSource:  comp,
			BufferSize:     bufSize,
			GroupsX:        atLeast1(f.numOr("num_groups_x", 1)),
			GroupsY:        atLeast1(f.numOr("num_groups_y", 1)),
			GroupsZ:        atLeast1(f.numOr("num_groups_z", 1)),
			Uniforms:       p.uniforms(f, key),
		}, nil
	}
	return nil, unknownKindError{kind: kind}
}

// uniforms extracts the scalar uniform map of a shader instruction.
// Non-scalar values are rejected per key, not per message.
func (p *CommandParser) uniforms(f fields, shader string) map[string]float64 {
	raw, ok := f["uniforms"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		n, ok := v.(float64)
		if !ok {
			p.log.Warn().Str("shader", shader).Str("uniform", k).
				Msg("non-scalar uniform value rejected")
			continue
		}
		out[k] = n
	}
	return out
}

// sourceKey derives a stable cache key from shader source when the plugin
// does not supply one.
func sourceKey(src string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(src))
	return fmt.Sprintf("src:%016x", h.Sum64())
}

func parseBlendMode(s string) types.BlendMode {
	switch types.BlendMode(s) {
	case types.BlendAdditive, types.BlendMultiply, types.BlendScreen:
		return types.BlendMode(s)
	default:
		return types.BlendNormal
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func atLeast1(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}
