package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"lines": func(text string) []string {
		return strings.Split(text, "\n")
	},
}).Parse(documentHTML))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title         string
	TaskID        int64
	Version       int
	ExportedAt    time.Time
	TotalDuration int
	EditedCount   int
	Paragraphs    []Paragraph
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func templateData(snap Snapshot) TemplateData {
	return TemplateData{
		Title:         displayTitle(snap),
		TaskID:        snap.TaskID,
		Version:       snap.Version,
		ExportedAt:    snap.ExportedAt,
		TotalDuration: snap.TotalDuration(),
		EditedCount:   snap.EditedCount(),
		Paragraphs:    snap.Paragraphs,
	}
}

// RenderMarkdown writes one heading per paragraph followed by its text.
// Edited paragraphs are marked so a reviewer can spot local changes.
func RenderMarkdown(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", displayTitle(snap))
	fmt.Fprintf(&b, "- Task: %d\n- Version: %d\n", snap.TaskID, snap.Version)
	fmt.Fprintf(&b, "- Duration: %ds\n", snap.TotalDuration())
	if edited := snap.EditedCount(); edited > 0 {
		fmt.Fprintf(&b, "- Unsaved paragraphs: %d\n", edited)
	}
	for _, p := range snap.Paragraphs {
		heading := p.Section
		if heading == "" {
			heading = p.ID
		}
		fmt.Fprintf(&b, "\n## %s", heading)
		if p.ShotID > 0 {
			fmt.Fprintf(&b, " (shot %d, %ds)", p.ShotID, p.EstimatedDuration)
		}
		if p.Edited {
			b.WriteString(" *edited*")
		}
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(p.Text, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func displayTitle(snap Snapshot) string {
	if strings.TrimSpace(snap.Title) != "" {
		return snap.Title
	}
	return fmt.Sprintf("Script for task %d", snap.TaskID)
}

const documentHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: "Noto Sans CJK SC", Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .paragraph { margin: 1.5rem 0; }
    .paragraph.edited { border-left: 3px solid #c60; padding-left: 1rem; }
    .shot { color: #666; font-size: 0.85em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">Task {{.TaskID}} | Version {{.Version}} | {{.TotalDuration}}s{{if not .ExportedAt.IsZero}} | {{formatDate .ExportedAt "2006-01-02 15:04"}}{{end}}{{if .EditedCount}} | {{.EditedCount}} unsaved{{end}}</div>
  {{range .Paragraphs}}
  <div class="paragraph{{if .Edited}} edited{{end}}" id="{{.ID}}">
    <h2>{{if .Section}}{{.Section}}{{else}}{{.ID}}{{end}}</h2>
    {{if .ShotID}}<div class="shot">Shot {{.ShotID}} | {{.EstimatedDuration}}s</div>{{end}}
    <p>{{range $i, $line := lines .Text}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>
  </div>
  {{end}}
</body>
</html>`
