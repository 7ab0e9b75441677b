package mcpserver

// SnapshotFormat describes the serialized page format that LLM consumers
// read through read_page.
const SnapshotFormat = `# notecanvas Page Snapshot Format

Every page is stored as one UTF-8 JSON object. An empty file is a blank page.

## Structure

` + "```" + `json
{
  "version": 1,
  "width": 794,
  "height": 1123,
  "background": "#ffffffff",
  "strokes": [
    {
      "id": "2f1c...",
      "tool": "pen",
      "width": 2,
      "color": "#1a1a1aff",
      "cap": "round",
      "points": [{"x": 12.5, "y": 40}, {"x": 13, "y": 41.5}]
    }
  ]
}
` + "```" + `

## Rules

1. **` + "`" + `version` + "`" + `** is always 1. Other versions are rejected as corrupt.
2. **Coordinates** are canvas pixels from the top-left corner, independent of
   any pan or zoom the editor had when the stroke was drawn.
3. **Strokes are in drawing order.** Later strokes paint over earlier ones.
4. **` + "`" + `tool` + "`" + `** is one of ` + "`" + `pen` + "`" + `, ` + "`" + `marker` + "`" + ` or ` + "`" + `eraser` + "`" + `.
   Eraser strokes paint the page background. Marker strokes are translucent.
5. **Colors** are ` + "`" + `#rrggbbaa` + "`" + ` hex (` + "`" + `#rrggbb` + "`" + ` is accepted on read).
6. **Every stroke** has a positive width and at least one point.
7. **Pages** of a document are numbered 1 to 10 and stored as
   ` + "`" + `<document>/page-NN.json` + "`" + `.

## Recognized text

Text recognized on a page (read aloud) is stored next to the page and is
returned as ` + "`" + `text` + "`" + ` by read_page. search_pages searches it.
`
