package surface

import (
	"fmt"
	"image/color"
)

// Tool selects how pointer input is interpreted.
type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
	ToolMarker Tool = "marker"
	ToolPan    Tool = "pan"
)

// Tools lists every tool in toolbar order.
var Tools = []Tool{ToolPen, ToolEraser, ToolMarker, ToolPan}

// ParseTool converts a tool name into a Tool.
func ParseTool(s string) (Tool, error) {
	for _, t := range Tools {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("surface: unknown tool %q", s)
}

// Draws reports whether the tool paints strokes.
func (t Tool) Draws() bool {
	return t == ToolPen || t == ToolEraser || t == ToolMarker
}

// Line cap styles.
const (
	CapRound  = "round"
	CapButt   = "butt"
	CapSquare = "square"
)

// Brush holds the stroke parameters applied to new strokes.
type Brush struct {
	Width float64
	Color color.NRGBA
	Cap   string
}

// BrushFor returns the brush for a drawing tool. The eraser paints in the
// background color. ok is false for tools that do not draw.
func BrushFor(tool Tool, background color.NRGBA) (b Brush, ok bool) {
	switch tool {
	case ToolPen:
		return Brush{Width: 2, Color: color.NRGBA{A: 0xff}, Cap: CapRound}, true
	case ToolMarker:
		// rgba(255, 255, 0, 0.4)
		return Brush{Width: 10, Color: color.NRGBA{R: 0xff, G: 0xff, A: 0x66}, Cap: CapRound}, true
	case ToolEraser:
		return Brush{Width: 20, Color: background, Cap: CapRound}, true
	default:
		return Brush{}, false
	}
}
