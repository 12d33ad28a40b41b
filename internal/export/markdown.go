package export

import (
	"fmt"
	"strings"
	"time"

	"syncbrief/api/internal/brief"
)

// Markdown writes the brief as a markdown document. Sections keep their
// order and each lists its comments newest first.
func Markdown(doc brief.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	fmt.Fprintf(&b, "_Status: %s", doc.Status)
	if doc.UpdatedAt > 0 {
		fmt.Fprintf(&b, " · Updated %s", formatMillis(doc.UpdatedAt))
	}
	b.WriteString("_\n")

	for _, section := range doc.Sections {
		fmt.Fprintf(&b, "\n## %s", section.Title)
		if section.IsLocked {
			b.WriteString(" (locked)")
		}
		b.WriteString("\n\n")
		if desc := strings.TrimSpace(section.Description); desc != "" {
			fmt.Fprintf(&b, "> %s\n\n", desc)
		}
		if content := strings.TrimSpace(section.Content); content != "" {
			b.WriteString(content)
			b.WriteString("\n")
		} else {
			b.WriteString("_No content yet._\n")
		}
		if section.LastEditedBy != nil {
			fmt.Fprintf(&b, "\n_Last edited by %s on %s_\n", section.LastEditedBy.Name, formatMillis(section.LastEditedAt))
		}

		comments := brief.CommentsForSection(doc, section.ID)
		if len(comments) == 0 {
			continue
		}
		b.WriteString("\n### Comments\n\n")
		for _, comment := range comments {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", comment.UserName, formatMillis(comment.Timestamp), oneLine(comment.Text))
		}
	}
	return b.String()
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("Jan 2, 2006 15:04 UTC")
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
