package prompts

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistry_ListOrder(t *testing.T) {
	registry := NewRegistry()
	for _, def := range BuiltinDefinitions() {
		if err := registry.Register(def); err != nil {
			t.Fatal(err)
		}
	}

	summaries := registry.List()
	if len(summaries) != 3 {
		t.Fatalf("List returned %d prompts, want 3", len(summaries))
	}
	if summaries[0].ID != "create_project" {
		t.Errorf("first prompt = %s", summaries[0].ID)
	}
	if len(summaries[1].Arguments) != 3 || !summaries[1].Arguments[0].Required {
		t.Errorf("add_screen arguments = %+v", summaries[1].Arguments)
	}
}

func TestRegistry_GetSubstitutesVariables(t *testing.T) {
	registry := NewRegistry()
	for _, def := range BuiltinDefinitions() {
		if err := registry.Register(def); err != nil {
			t.Fatal(err)
		}
	}

	result, err := registry.Get("create_project", map[string]string{
		"name":         "shop_app",
		"template":     "riverpod",
		"organization": "com.acme",
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(result.Messages) != 1 || result.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v", result.Messages)
	}
	text := result.Messages[0].Content.Text
	for _, want := range []string{"shop_app", "riverpod", "com.acme"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q: %s", want, text)
		}
	}
	if strings.Contains(text, "{{") {
		t.Errorf("unresolved placeholder in %s", text)
	}
}

func TestRegistry_GetUnknownPrompt(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Get("nope", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_GetMissingRequiredVariable(t *testing.T) {
	registry := NewRegistry()
	for _, def := range BuiltinDefinitions() {
		if err := registry.Register(def); err != nil {
			t.Fatal(err)
		}
	}

	_, err := registry.Get("add_screen", map[string]string{"name": "home"})
	if err == nil || !strings.Contains(err.Error(), "feature") {
		t.Errorf("error = %v, want missing feature variable", err)
	}
}
