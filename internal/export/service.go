package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"syncbrief/api/internal/brief"
)

// Service renders briefs. The zero value is usable.
type Service struct {
	// PDFTimeout bounds a single headless Chrome run. Zero means 30s.
	PDFTimeout time.Duration

	// pdf is swapped in tests.
	pdf func(ctx context.Context, html string, timeout time.Duration) ([]byte, error)
}

// NewService creates a new export service
func NewService(pdfTimeout time.Duration) *Service {
	return &Service{PDFTimeout: pdfTimeout}
}

// Export renders doc in the requested format.
func (s *Service) Export(ctx context.Context, doc brief.Document, format Format) (*Result, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatMarkdown:
		data = []byte(Markdown(doc))
	case FormatHTML:
		var html string
		html, err = s.html(doc)
		data = []byte(html)
	case FormatPDF:
		var html string
		if html, err = s.html(doc); err == nil {
			data, err = s.renderPDF(ctx, html)
		}
	case FormatJSON:
		data, err = json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		data, err = marshalYAML(doc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}

	return &Result{
		Data:     data,
		Filename: sanitizeFilename(doc.Title) + "." + format.extension(),
		MimeType: format.mimeType(),
	}, nil
}

func (s *Service) html(doc brief.Document) (string, error) {
	data, err := buildTemplateData(doc)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	html, err := RenderBriefHTML(data)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return html, nil
}

func (s *Service) renderPDF(ctx context.Context, html string) ([]byte, error) {
	if s.pdf != nil {
		return s.pdf(ctx, html, s.PDFTimeout)
	}
	return renderPDF(ctx, html, s.PDFTimeout)
}

// marshalYAML goes through JSON first so the YAML keys match the wire
// names (camelCase) instead of yaml.v3's lowercased field names.
func marshalYAML(doc brief.Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var tree interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return yaml.Marshal(tree)
}
