package reports

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/adpulse/campaign-watcher/internal/models"
	"github.com/adpulse/campaign-watcher/internal/notifications"
	"github.com/adpulse/campaign-watcher/pkg/types"
)

// HTMLRenderer renders a preview into a self-contained HTML document. The
// rendered document is what gets attached to the delivery mail; PDF and image
// formats are produced from it by the downstream conversion service, so the
// filename keeps the report's configured format extension.
type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{tmpl: template.Must(template.New("report").Funcs(template.FuncMap{
		"metricLabel": notifications.HumanizeMetric,
		"num":         func(v float64) string { return fmt.Sprintf("%.2f", v) },
	}).Parse(reportTemplate))}
}

func (r *HTMLRenderer) Render(ctx context.Context, report *models.Report, preview *Preview) (*Rendered, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, preview); err != nil {
		return nil, fmt.Errorf("report %s: render: %w", report.ID, err)
	}

	ext := "html"
	if report.DeliveryFormat == types.FormatImage {
		ext = "png.html"
	}

	return &Rendered{
		Data:        buf.Bytes(),
		Filename:    fmt.Sprintf("%s-%s.%s", slugify(preview.Title), preview.GeneratedAt.Format("2006-01-02"), ext),
		ContentType: "text/html",
	}, nil
}

func slugify(title string) string {
	if title == "" {
		return "report"
	}
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ', r == '-', r == '_':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "report"
	}
	return string(out)
}

const reportTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; margin: 24px;">
<h1>{{.Title}}</h1>
<p>{{.DateRange.Start.Format "Jan 2, 2006"}} &ndash; {{.DateRange.End.Format "Jan 2, 2006"}}</p>
{{range .Widgets}}
<div style="margin-bottom: 24px;">
  <h2>{{.Title}}</h2>
  {{if eq .Type "kpi"}}
    <p style="font-size: 2em;">{{if .Value}}{{num .Value}}{{end}}</p>
    {{if .Trend}}<p>{{num .Trend}}% vs previous period{{if .Previous}}{{if eq .Previous.Source "estimated"}} (estimated baseline){{end}}{{end}}</p>{{end}}
  {{else if .Points}}
    <table border="1" cellpadding="6" cellspacing="0">
      <tr><th>Segment</th><th>{{metricLabel .Metric}}</th></tr>
      {{range .Points}}<tr><td>{{.Name}}</td><td>{{num .Value}}</td></tr>{{end}}
    </table>
  {{else}}
    <table border="1" cellpadding="6" cellspacing="0">
      {{range .Groups}}<tr><td>{{.Key}}</td>{{range $m, $v := .Metrics}}<td>{{metricLabel $m}}: {{num $v}}</td>{{end}}</tr>{{end}}
    </table>
  {{end}}
</div>
{{end}}
<p style="color: #888;">Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}}</p>
</body>
</html>`
