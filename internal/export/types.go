// Package export renders the brief as markdown, HTML, PDF, JSON, or YAML.
package export

import (
	"errors"
	"fmt"
	"strings"
)

// Format represents the export output format
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Formats lists every supported format in a stable order.
var Formats = []Format{FormatMarkdown, FormatHTML, FormatPDF, FormatJSON, FormatYAML}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat is returned for any format outside Formats.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrArchiveDisabled is returned when no object store is configured.
	ErrArchiveDisabled = errors.New("export archive disabled")
)

// ParseFormat accepts a format name case-insensitively. "markdown" and "yml" are aliases.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, value)
	}
}

func (f Format) extension() string {
	return string(f)
}

func (f Format) mimeType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}
