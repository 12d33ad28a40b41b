package email

import (
	"fmt"
	"regexp"
	"strings"

	"syncbrief/api/internal/identity"
)

var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z][\w-]*)`)

// ParseMentions returns the identities tagged with @handle in text, in
// first-mention order without repeats. Unknown handles are ignored.
func ParseMentions(text string) []identity.Identity {
	var found []identity.Identity
	seen := map[string]bool{}
	for _, match := range mentionPattern.FindAllStringSubmatch(text, -1) {
		item, ok := identity.ByHandle(match[1])
		if !ok || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		found = append(found, item)
	}
	return found
}

// ParseAddressBook reads "u1=a@example.com,u2=b@example.com". Malformed
// pairs are skipped.
func ParseAddressBook(raw string) map[string]string {
	book := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		id, addr, ok := strings.Cut(strings.TrimSpace(pair), "=")
		id, addr = strings.TrimSpace(id), strings.TrimSpace(addr)
		if !ok || id == "" || !strings.Contains(addr, "@") {
			continue
		}
		book[id] = addr
	}
	return book
}

// Mention is one comment that tags someone.
type Mention struct {
	Author       identity.Identity
	SectionTitle string
	Text         string
	Link         string
}

type mentionData struct {
	AppName      string
	Recipient    string
	Author       string
	SectionTitle string
	Text         string
	Link         string
}

// Notifier emails every identity mentioned in a comment that has an address.
type Notifier struct {
	mailer *Service
	book   map[string]string
}

// NewNotifier returns a notifier that sends through mailer.
func NewNotifier(mailer *Service, book map[string]string) *Notifier {
	return &Notifier{mailer: mailer, book: book}
}

// Enabled reports whether any mail could ever be sent.
func (n *Notifier) Enabled() bool {
	return n != nil && n.mailer.IsConfigured() && len(n.book) > 0
}

// NotifyMentions sends one email per mentioned identity and returns the
// ids notified. The author is never emailed about their own comment.
func (n *Notifier) NotifyMentions(m Mention) ([]string, error) {
	if !n.Enabled() {
		return nil, nil
	}
	var notified []string
	var errs []string
	for _, target := range ParseMentions(m.Text) {
		if target.ID == m.Author.ID {
			continue
		}
		addr, ok := n.book[target.ID]
		if !ok {
			continue
		}
		data := mentionData{
			AppName:      "SyncBrief",
			Recipient:    target.Name,
			Author:       m.Author.Name,
			SectionTitle: m.SectionTitle,
			Text:         m.Text,
			Link:         m.Link,
		}
		html, err := renderTemplate(mentionEmailTemplate, data)
		if err != nil {
			return notified, fmt.Errorf("render mention template: %w", err)
		}
		subject := fmt.Sprintf("%s mentioned you on \"%s\"", m.Author.Name, m.SectionTitle)
		text := fmt.Sprintf("%s wrote on %s:\n\n%s\n\n%s", m.Author.Name, m.SectionTitle, m.Text, m.Link)
		if err := n.mailer.SendHTMLEmail([]string{addr}, subject, text, html); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", target.ID, err))
			continue
		}
		notified = append(notified, target.ID)
	}
	if len(errs) > 0 {
		return notified, fmt.Errorf("send mention email: %s", strings.Join(errs, "; "))
	}
	return notified, nil
}

const mentionEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Author}} mentioned you</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2563eb; padding-bottom: 10px; margin-bottom: 20px; }
        .quote { background: #f1f5f9; border-left: 3px solid #2563eb; padding: 12px; white-space: pre-wrap; }
        .button { display: inline-block; padding: 12px 24px; background: #2563eb; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>Hi {{.Recipient}},</p>

    <p>{{.Author}} mentioned you on <strong>{{.SectionTitle}}</strong>:</p>

    <div class="quote">{{.Text}}</div>

    {{if .Link}}<p><a href="{{.Link}}" class="button">Open the brief</a></p>{{end}}

    <div class="footer">
        <p>You are receiving this because someone tagged you in a brief comment.</p>
    </div>
</body>
</html>`
