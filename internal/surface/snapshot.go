package surface

import (
	"encoding/json"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/starford/notecanvas/internal/apperr"
)

const snapshotVersion = 1

// Point is a position in canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one completed polyline on the canvas.
type Stroke struct {
	ID     string  `json:"id"`
	Tool   Tool    `json:"tool"`
	Width  float64 `json:"width"`
	Color  string  `json:"color"`
	Cap    string  `json:"cap"`
	Points []Point `json:"points"`
}

// RGBA decodes the stroke color.
func (s Stroke) RGBA() (color.NRGBA, error) {
	return ParseColor(s.Color)
}

// Document is the serialized form of a surface buffer. Field order is fixed
// so that equal buffers always serialize to equal bytes.
type Document struct {
	Version    int      `json:"version"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Background string   `json:"background"`
	Strokes    []Stroke `json:"strokes"`
}

// Summary describes a snapshot without rendering it.
type Summary struct {
	Width   int
	Height  int
	Strokes int
	Points  int
}

// Encode serializes doc.
func Encode(doc Document) (string, error) {
	if doc.Strokes == nil {
		doc.Strokes = []Stroke{}
	}
	doc.Version = snapshotVersion
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("surface: encode snapshot: %w", err)
	}
	return string(data), nil
}

// Decode parses and validates a snapshot. Errors wrap apperr.ErrCorruptSnapshot.
func Decode(content string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return Document{}, fmt.Errorf("surface: %w: %v", apperr.ErrCorruptSnapshot, err)
	}
	if doc.Version != snapshotVersion {
		return Document{}, fmt.Errorf("surface: %w: unsupported version %d", apperr.ErrCorruptSnapshot, doc.Version)
	}
	if doc.Width <= 0 || doc.Height <= 0 || doc.Width > MaxDimension || doc.Height > MaxDimension {
		return Document{}, fmt.Errorf("surface: %w: canvas size %dx%d", apperr.ErrCorruptSnapshot, doc.Width, doc.Height)
	}
	if _, err := ParseColor(doc.Background); err != nil {
		return Document{}, fmt.Errorf("surface: %w: background: %v", apperr.ErrCorruptSnapshot, err)
	}
	for i, s := range doc.Strokes {
		if _, err := s.RGBA(); err != nil {
			return Document{}, fmt.Errorf("surface: %w: stroke %d: %v", apperr.ErrCorruptSnapshot, i, err)
		}
		if s.Width <= 0 || len(s.Points) == 0 {
			return Document{}, fmt.Errorf("surface: %w: stroke %d is empty", apperr.ErrCorruptSnapshot, i)
		}
	}
	if doc.Strokes == nil {
		doc.Strokes = []Stroke{}
	}
	return doc, nil
}

// Summarize decodes content and counts its strokes. Empty content is a blank page.
func Summarize(content []byte) (Summary, error) {
	if len(content) == 0 {
		return Summary{}, nil
	}
	doc, err := Decode(string(content))
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Width: doc.Width, Height: doc.Height, Strokes: len(doc.Strokes)}
	for _, s := range doc.Strokes {
		sum.Points += len(s.Points)
	}
	return sum, nil
}

// FormatColor renders c as #rrggbbaa.
func FormatColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// ParseColor accepts #rrggbb and #rrggbbaa.
func ParseColor(s string) (color.NRGBA, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || (len(hex) != 6 && len(hex) != 8) {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}
