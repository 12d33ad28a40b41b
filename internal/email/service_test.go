package email

import (
	"errors"
	"net/smtp"
	"reflect"
	"strings"
	"testing"

	"syncbrief/api/internal/identity"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func captureService(config Config, sent *[]sentMail, failFor string) *Service {
	svc := NewService(config)
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if failFor != "" && to[0] == failFor {
			return errors.New("mailbox unavailable")
		}
		*sent = append(*sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return svc
}

var smtpConfig = Config{Host: "smtp.example.com", Port: "587", From: "brief@example.com", FromName: "SyncBrief"}

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "test@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "test@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "test@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendEmailNotConfigured(t *testing.T) {
	if err := NewService(Config{}).SendEmail([]string{"a@example.com"}, "s", "b"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendHTMLEmailHeaders(t *testing.T) {
	var sent []sentMail
	svc := captureService(smtpConfig, &sent, "")
	if err := svc.SendHTMLEmail([]string{"jordan@example.com"}, "Hello", "plain body", "<p>html body</p>"); err != nil {
		t.Fatalf("SendHTMLEmail() error = %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	msg := sent[0].msg
	if sent[0].addr != "smtp.example.com:587" || sent[0].from != "brief@example.com" {
		t.Errorf("unexpected envelope %+v", sent[0])
	}
	for _, want := range []string{"From: SyncBrief <brief@example.com>", "Subject: Hello", "plain body", "<p>html body</p>", "--boundary-syncbrief--"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestParseMentions(t *testing.T) {
	tests := []struct {
		text     string
		expected []string
	}{
		{"no tags here", nil},
		{"@jordan can you check?", []string{"u2"}},
		{"cc @Casey and @jordan, also @casey again", []string{"u3", "u2"}},
		{"mail me at alex@example.com", nil},
		{"@nobody knows", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var ids []string
			for _, item := range ParseMentions(tt.text) {
				ids = append(ids, item.ID)
			}
			if !reflect.DeepEqual(ids, tt.expected) {
				t.Errorf("ParseMentions(%q) = %v, want %v", tt.text, ids, tt.expected)
			}
		})
	}
}

func TestParseAddressBook(t *testing.T) {
	book := ParseAddressBook(" u1=alex@example.com, u2 = jordan@example.com,broken,u3=not-an-address,=x@y")
	expected := map[string]string{"u1": "alex@example.com", "u2": "jordan@example.com"}
	if !reflect.DeepEqual(book, expected) {
		t.Fatalf("ParseAddressBook() = %v, want %v", book, expected)
	}
}

func TestNotifyMentionsSkipsAuthorAndUnknownAddresses(t *testing.T) {
	var sent []sentMail
	notifier := NewNotifier(captureService(smtpConfig, &sent, ""), map[string]string{
		"u1": "alex@example.com",
		"u2": "jordan@example.com",
	})
	author, _ := identity.Lookup("u1")

	notified, err := notifier.NotifyMentions(Mention{
		Author:       author,
		SectionTitle: "Problem Statement",
		Text:         "@alex @jordan @casey please review",
		Link:         "http://localhost:5173/?section=s1",
	})
	if err != nil {
		t.Fatalf("NotifyMentions() error = %v", err)
	}
	if !reflect.DeepEqual(notified, []string{"u2"}) {
		t.Fatalf("notified = %v, want [u2]", notified)
	}
	if len(sent) != 1 || sent[0].to[0] != "jordan@example.com" {
		t.Fatalf("unexpected mail %+v", sent)
	}
	if !strings.Contains(sent[0].msg, "Alex Designer mentioned you on \"Problem Statement\"") {
		t.Errorf("subject missing from message:\n%s", sent[0].msg)
	}
	if !strings.Contains(sent[0].msg, "Open the brief") {
		t.Error("html part should carry the link")
	}
}

func TestNotifyMentionsReportsFailures(t *testing.T) {
	var sent []sentMail
	notifier := NewNotifier(captureService(smtpConfig, &sent, "casey@example.com"), map[string]string{
		"u2": "jordan@example.com",
		"u3": "casey@example.com",
	})
	author, _ := identity.Lookup("u1")

	notified, err := notifier.NotifyMentions(Mention{Author: author, SectionTitle: "Goals", Text: "@casey @jordan"})
	if err == nil || !strings.Contains(err.Error(), "u3") {
		t.Fatalf("expected failure naming u3, got %v", err)
	}
	if !reflect.DeepEqual(notified, []string{"u2"}) {
		t.Fatalf("notified = %v, want [u2]", notified)
	}
}

func TestNotifierDisabled(t *testing.T) {
	notifier := NewNotifier(NewService(Config{}), map[string]string{"u2": "jordan@example.com"})
	if notifier.Enabled() {
		t.Fatal("notifier without SMTP should be disabled")
	}
	notified, err := notifier.NotifyMentions(Mention{Text: "@jordan"})
	if err != nil || notified != nil {
		t.Fatalf("disabled notifier should do nothing, got %v %v", notified, err)
	}
}
