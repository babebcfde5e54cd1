package export

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	content, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		panic(fmt.Sprintf("export: missing embedded report template: %v", err))
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(content)))
}

// TemplateData holds data for report template rendering.
type TemplateData struct {
	Title       string
	Namespace   string
	SectionID   string
	OwnerName   string
	GeneratedAt time.Time
	Inputs      []InputRow
	OutputHTML  template.HTML
}

// InputRow is one wizard field rendered in the inputs table.
type InputRow struct {
	Key   string
	Value string
}

// RenderReportHTML renders the report template with provided data.
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// inputRows flattens wizard inputs into sorted key/value rows.
func inputRows(inputs map[string]any) []InputRow {
	rows := make([]InputRow, 0, len(inputs))
	for key, value := range inputs {
		rows = append(rows, InputRow{Key: key, Value: stringifyValue(value)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "yes"
		}
		return "no"
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

// outputHTML renders a generated result: text becomes paragraphs,
// structured output becomes pretty-printed JSON. All content is
// escaped before wrapping.
func outputHTML(output any) template.HTML {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		var b strings.Builder
		for _, para := range strings.Split(v, "\n\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			b.WriteString("<p>")
			b.WriteString(template.HTMLEscapeString(para))
			b.WriteString("</p>")
		}
		return template.HTML(b.String())
	default:
		encoded, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return ""
		}
		return template.HTML("<pre>" + template.HTMLEscapeString(string(encoded)) + "</pre>")
	}
}
