package identity

import (
	"strings"
)

// Identity is a collaborator profile. Attribution fields elsewhere store a
// copy of it, never a reference.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Color  string `json:"color"`
}

const (
	DefaultID     = "u1"
	AssistantName = "Gemini AI"
	assistSuffix  = " (via AI)"
)

var registry = []Identity{
	{ID: "u1", Name: "Alex Designer", Avatar: "https://picsum.photos/seed/alex/32/32", Color: "bg-blue-500"},
	{ID: "u2", Name: "Jordan PM", Avatar: "https://picsum.photos/seed/jordan/32/32", Color: "bg-emerald-500"},
	{ID: "u3", Name: "Casey Eng", Avatar: "https://picsum.photos/seed/casey/32/32", Color: "bg-purple-500"},
}

// All returns the registry in display order.
func All() []Identity {
	out := make([]Identity, len(registry))
	copy(out, registry)
	return out
}

func Lookup(id string) (Identity, bool) {
	for _, item := range registry {
		if item.ID == id {
			return item, true
		}
	}
	return Identity{}, false
}

// Default is the identity selected when a caller names none.
func Default() Identity {
	item, _ := Lookup(DefaultID)
	return item
}

// Handle is the @mention handle of an identity: its lowercased first name.
func Handle(item Identity) string {
	first, _, _ := strings.Cut(strings.TrimSpace(item.Name), " ")
	return strings.ToLower(first)
}

func ByHandle(handle string) (Identity, bool) {
	handle = strings.ToLower(strings.TrimPrefix(handle, "@"))
	for _, item := range registry {
		if Handle(item) == handle {
			return item, true
		}
	}
	return Identity{}, false
}

// AssistedBy marks an edit the actor made through the text-assist gateway.
func AssistedBy(actor Identity) Identity {
	actor.Name = actor.Name + assistSuffix
	return actor
}

// AssistantFor is the attribution for sections the gateway proposed on the
// actor's behalf.
func AssistantFor(actor Identity) Identity {
	actor.Name = AssistantName
	return actor
}
