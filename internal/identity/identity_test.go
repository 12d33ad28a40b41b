package identity

import "testing"

func TestRegistryIsFixed(t *testing.T) {
	all := All()
	if len(all) != 3 {
		t.Fatalf("expected 3 identities, got %d", len(all))
	}
	all[0].Name = "mutated"
	if got, _ := Lookup("u1"); got.Name != "Alex Designer" {
		t.Fatalf("registry changed through returned slice: %q", got.Name)
	}
	if Default().ID != "u1" {
		t.Fatalf("expected default u1, got %q", Default().ID)
	}
	if _, ok := Lookup("u9"); ok {
		t.Fatal("expected unknown id to miss")
	}
}

func TestHandles(t *testing.T) {
	casey, _ := Lookup("u3")
	if got := Handle(casey); got != "casey" {
		t.Fatalf("expected handle casey, got %q", got)
	}
	found, ok := ByHandle("@Jordan")
	if !ok || found.ID != "u2" {
		t.Fatalf("expected @Jordan to resolve to u2, got %+v ok=%v", found, ok)
	}
}

func TestAttributionNames(t *testing.T) {
	alex := Default()
	if got := AssistedBy(alex).Name; got != "Alex Designer (via AI)" {
		t.Fatalf("unexpected assisted name %q", got)
	}
	assistant := AssistantFor(alex)
	if assistant.Name != "Gemini AI" || assistant.ID != "u1" || assistant.Avatar != alex.Avatar {
		t.Fatalf("unexpected assistant identity %+v", assistant)
	}
	if alex.Name != "Alex Designer" {
		t.Fatal("attribution helpers must not modify the caller's value")
	}
}
