package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"syncbrief/api/internal/brief"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var briefTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"safeHTML": SafeHTML,
	}

	templateContent, err := templateFS.ReadFile("templates/brief.html")
	if err != nil {
		briefTemplate = template.Must(template.New("brief").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	briefTemplate = template.Must(template.New("brief").Funcs(funcMap).Parse(string(templateContent)))
}

// Raw HTML in section content is dropped: goldmark escapes it unless WithUnsafe is set.
var (
	markdownOnce sync.Once
	markdownConv goldmark.Markdown
)

func markdownConverter() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownConv = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownConv
}

// MarkdownToHTML converts section content written in markdown to HTML.
func MarkdownToHTML(source string) (template.HTML, error) {
	if strings.TrimSpace(source) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdownConverter().Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// TemplateData holds data for brief template rendering
type TemplateData struct {
	Title     string
	Status    string
	UpdatedAt time.Time
	Sections  []TemplateSection
}

// TemplateSection holds one section for template rendering
type TemplateSection struct {
	Title       string
	Description string
	ContentHTML template.HTML
	Locked      bool
	EditedBy    string
	EditedAt    time.Time
	Comments    []TemplateComment
}

// TemplateComment holds comment data for template
type TemplateComment struct {
	Author string
	Text   string
	When   time.Time
}

func buildTemplateData(doc brief.Document) (TemplateData, error) {
	data := TemplateData{
		Title:     doc.Title,
		Status:    string(doc.Status),
		UpdatedAt: time.UnixMilli(doc.UpdatedAt).UTC(),
		Sections:  make([]TemplateSection, 0, len(doc.Sections)),
	}
	for _, section := range doc.Sections {
		contentHTML, err := MarkdownToHTML(section.Content)
		if err != nil {
			return TemplateData{}, err
		}
		item := TemplateSection{
			Title:       section.Title,
			Description: section.Description,
			ContentHTML: contentHTML,
			Locked:      section.IsLocked,
			Comments:    []TemplateComment{},
		}
		if section.LastEditedBy != nil {
			item.EditedBy = section.LastEditedBy.Name
			item.EditedAt = time.UnixMilli(section.LastEditedAt).UTC()
		}
		for _, comment := range brief.CommentsForSection(doc, section.ID) {
			item.Comments = append(item.Comments, TemplateComment{
				Author: comment.UserName,
				Text:   comment.Text,
				When:   time.UnixMilli(comment.Timestamp).UTC(),
			})
		}
		data.Sections = append(data.Sections, item)
	}
	return data, nil
}

// RenderBriefHTML renders the brief template with provided data
func RenderBriefHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := briefTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .comment { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Status}} | {{.UpdatedAt.Format "Jan 2, 2006"}}</div>
  {{range .Sections}}
  <h2>{{.Title}}</h2>
  <div>{{.ContentHTML | safeHTML}}</div>
  {{range .Comments}}<div class="comment">{{.Author}}: {{.Text}}</div>{{end}}
  {{end}}
</body>
</html>`
