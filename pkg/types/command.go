package types

// CommandKind identifies one drawing instruction variant.
type CommandKind uint8

const (
	KindClear CommandKind = iota
	KindFillRect
	KindStrokeRect
	KindFillRoundedRect
	KindStrokeRoundedRect
	KindFillEllipse
	KindStrokeEllipse
	KindFillCircle
	KindStrokeCircle
	KindDrawLine
	KindDrawPolyline
	KindDrawPath
	KindFillPath
	KindDrawBezier
	KindDrawArc
	KindFillArc
	KindDrawText
	KindDrawImage
	KindFillGradientRect
	KindSetClip
	KindResetClip
	KindPushTransform
	KindPopTransform
	KindSaveState
	KindRestoreState
	KindSetOpacity
	KindSetBlendMode
	KindDrawShader
	KindDrawCustomShader
)

var kindNames = [...]string{
	KindClear:             "clear",
	KindFillRect:          "fill_rect",
	KindStrokeRect:        "stroke_rect",
	KindFillRoundedRect:   "fill_rounded_rect",
	KindStrokeRoundedRect: "stroke_rounded_rect",
	KindFillEllipse:       "fill_ellipse",
	KindStrokeEllipse:     "stroke_ellipse",
	KindFillCircle:        "fill_circle",
	KindStrokeCircle:      "stroke_circle",
	KindDrawLine:          "draw_line",
	KindDrawPolyline:      "draw_polyline",
	KindDrawPath:          "draw_path",
	KindFillPath:          "fill_path",
	KindDrawBezier:        "draw_bezier",
	KindDrawArc:           "draw_arc",
	KindFillArc:           "fill_arc",
	KindDrawText:          "draw_text",
	KindDrawImage:         "draw_image",
	KindFillGradientRect:  "fill_gradient_rect",
	KindSetClip:           "set_clip",
	KindResetClip:         "reset_clip",
	KindPushTransform:     "push_transform",
	KindPopTransform:      "pop_transform",
	KindSaveState:         "save_state",
	KindRestoreState:      "restore_state",
	KindSetOpacity:        "set_opacity",
	KindSetBlendMode:      "set_blend_mode",
	KindDrawShader:        "draw_shader",
	KindDrawCustomShader:  "draw_custom_shader",
}

// String returns the wire discriminator for the kind.
func (k CommandKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Command is the interface implemented by every drawing instruction.
// A rendered frame is an ordered []Command; order is significant because the
// clip/transform/state instructions are positional.
//
// Typed structs per kind (rather than a generic field bag) let replay code
// switch exhaustively and remove the "missing key" class of runtime errors.
type Command interface {
	Kind() CommandKind
}

// Color is a packed 32-bit ARGB value, alpha in the top byte.
type Color uint32

// Point is an x/y coordinate pair in local component space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GradientStop pairs a 0..1 position with a colour.
type GradientStop struct {
	Position float64 `json:"position"`
	Color    Color   `json:"color"`
}

// Gradient describes a linear or radial colour ramp between two points.
type Gradient struct {
	Stops  []GradientStop `json:"stops"`
	X1, Y1 float64
	X2, Y2 float64
	Radial bool `json:"radial"`
}

// FontSpec selects the typeface for DrawText.
type FontSpec struct {
	Family string  `json:"family"`
	Size   float64 `json:"size"`
	Bold   bool    `json:"bold"`
	Italic bool    `json:"italic"`
}

// Clear fills the whole component area with a solid colour.
type Clear struct {
	Color Color
}

func (Clear) Kind() CommandKind { return KindClear }

// FillRect fills an axis-aligned rectangle.
type FillRect struct {
	X, Y, W, H float64
	Color      Color
}

func (FillRect) Kind() CommandKind { return KindFillRect }

// StrokeRect outlines an axis-aligned rectangle.
type StrokeRect struct {
	X, Y, W, H float64
	Color      Color
	Thickness  float64
}

func (StrokeRect) Kind() CommandKind { return KindStrokeRect }

// FillRoundedRect fills a rectangle with rounded corners.
type FillRoundedRect struct {
	X, Y, W, H float64
	Radius     float64
	Color      Color
}

func (FillRoundedRect) Kind() CommandKind { return KindFillRoundedRect }

// StrokeRoundedRect outlines a rectangle with rounded corners.
type StrokeRoundedRect struct {
	X, Y, W, H float64
	Radius     float64
	Color      Color
	Thickness  float64
}

func (StrokeRoundedRect) Kind() CommandKind { return KindStrokeRoundedRect }

// FillEllipse fills an ellipse centred at (CX,CY) with radii RX/RY.
type FillEllipse struct {
	CX, CY, RX, RY float64
	Color          Color
}

func (FillEllipse) Kind() CommandKind { return KindFillEllipse }

// StrokeEllipse outlines an ellipse.
type StrokeEllipse struct {
	CX, CY, RX, RY float64
	Color          Color
	Thickness      float64
}

func (StrokeEllipse) Kind() CommandKind { return KindStrokeEllipse }

// FillCircle fills a circle.
type FillCircle struct {
	CX, CY, Radius float64
	Color          Color
}

func (FillCircle) Kind() CommandKind { return KindFillCircle }

// StrokeCircle outlines a circle.
type StrokeCircle struct {
	CX, CY, Radius float64
	Color          Color
	Thickness      float64
}

func (StrokeCircle) Kind() CommandKind { return KindStrokeCircle }

// DrawLine draws a straight segment.
type DrawLine struct {
	X1, Y1, X2, Y2 float64
	Color          Color
	Thickness      float64
}

func (DrawLine) Kind() CommandKind { return KindDrawLine }

// DrawPolyline strokes an open polyline through Points.
type DrawPolyline struct {
	Points    []Point
	Color     Color
	Thickness float64
}

func (DrawPolyline) Kind() CommandKind { return KindDrawPolyline }

// DrawPath strokes a polygonal path, optionally closed.
type DrawPath struct {
	Points    []Point
	Closed    bool
	Color     Color
	Thickness float64
}

func (DrawPath) Kind() CommandKind { return KindDrawPath }

// FillPath fills a closed polygonal path.
type FillPath struct {
	Points []Point
	Color  Color
}

func (FillPath) Kind() CommandKind { return KindFillPath }

// DrawBezier strokes a cubic bezier from (X1,Y1) to (X2,Y2).
type DrawBezier struct {
	X1, Y1    float64
	CX1, CY1  float64
	CX2, CY2  float64
	X2, Y2    float64
	Color     Color
	Thickness float64
}

func (DrawBezier) Kind() CommandKind { return KindDrawBezier }

// DrawArc strokes a circular arc. Angles are radians.
type DrawArc struct {
	CX, CY, Radius float64
	Start, End     float64
	Color          Color
	Thickness      float64
}

func (DrawArc) Kind() CommandKind { return KindDrawArc }

// FillArc fills a pie segment.
type FillArc struct {
	CX, CY, Radius float64
	Start, End     float64
	Color          Color
}

func (FillArc) Kind() CommandKind { return KindFillArc }

// TextAlign selects horizontal text placement within the layout box.
type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

// DrawText draws a string inside the box (X,Y,W,H).
type DrawText struct {
	Text       string
	X, Y, W, H float64
	Color      Color
	Font       FontSpec
	Align      TextAlign
}

func (DrawText) Kind() CommandKind { return KindDrawText }

// DrawImage draws a base64-encoded or pre-registered image stretched into
// the box (X,Y,W,H). Src holds base64 data; Key references a registered image.
type DrawImage struct {
	Src        string
	ImageKey   string
	X, Y, W, H float64
}

func (DrawImage) Kind() CommandKind { return KindDrawImage }

// FillGradientRect fills a rectangle with a gradient ramp.
type FillGradientRect struct {
	X, Y, W, H float64
	Gradient   Gradient
}

func (FillGradientRect) Kind() CommandKind { return KindFillGradientRect }

// SetClip pushes a rectangular clip region. Must be balanced by ResetClip
// within the same frame.
type SetClip struct {
	X, Y, W, H float64
}

func (SetClip) Kind() CommandKind { return KindSetClip }

// ResetClip pops the clip region pushed by the matching SetClip.
type ResetClip struct{}

func (ResetClip) Kind() CommandKind { return KindResetClip }

// PushTransform pushes a translate/rotate/scale transform. Must be balanced
// by PopTransform within the same frame.
type PushTransform struct {
	TranslateX, TranslateY float64
	Rotate                 float64
	ScaleX, ScaleY         float64
}

func (PushTransform) Kind() CommandKind { return KindPushTransform }

// PopTransform pops the transform pushed by the matching PushTransform.
type PopTransform struct{}

func (PopTransform) Kind() CommandKind { return KindPopTransform }

// SaveState pushes the full graphics state.
type SaveState struct{}

func (SaveState) Kind() CommandKind { return KindSaveState }

// RestoreState pops the graphics state.
type RestoreState struct{}

func (RestoreState) Kind() CommandKind { return KindRestoreState }

// SetOpacity sets the global draw opacity for subsequent instructions, 0..1.
type SetOpacity struct {
	Opacity float64
}

func (SetOpacity) Kind() CommandKind { return KindSetOpacity }

// BlendMode names a compositing mode for SetBlendMode.
type BlendMode string

const (
	BlendNormal   BlendMode = "normal"
	BlendAdditive BlendMode = "additive"
	BlendMultiply BlendMode = "multiply"
	BlendScreen   BlendMode = "screen"
)

// SetBlendMode sets the compositing mode for subsequent instructions.
type SetBlendMode struct {
	Mode BlendMode
}

func (SetBlendMode) Kind() CommandKind { return KindSetBlendMode }

// DrawShader executes a built-in GPU shader pass identified by ShaderID.
// Uniforms are scalar-only and applied per invocation.
type DrawShader struct {
	ShaderID string
	Uniforms map[string]float64
}

func (DrawShader) Kind() CommandKind { return KindDrawShader }

// DrawCustomShader compiles (or reuses from cache, by CacheKey) a
// plugin-supplied shader. A non-empty ComputeSource requests a compute stage
// with a persistent buffer of BufferSize bytes dispatched over
// GroupsX×GroupsY×GroupsZ work groups.
type DrawCustomShader struct {
	CacheKey       string
	FragmentSource string
	ComputeSource  string
	BufferSize     int
	GroupsX        int
	GroupsY        int
	GroupsZ        int
	Uniforms       map[string]float64
}

func (DrawCustomShader) Kind() CommandKind { return KindDrawCustomShader }
