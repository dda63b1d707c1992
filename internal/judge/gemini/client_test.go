package gemini

import (
	"context"
	"testing"
)

func TestGeneratorRequiresAPIKey(t *testing.T) {
	if _, err := NewGenerator(context.Background(), "   ", "", 0, nil); err == nil {
		t.Fatal("expected an error for a blank api key")
	}
}

func TestGenerateContentUninitialized(t *testing.T) {
	var g *Generator
	if _, err := g.GenerateContent(context.Background(), "prompt"); err == nil {
		t.Fatal("expected an error from a nil generator")
	}

	if _, err := (&Generator{}).GenerateContent(context.Background(), "prompt"); err == nil {
		t.Fatal("expected an error from a generator without a client")
	}
}

func TestModelOnNilGenerator(t *testing.T) {
	var g *Generator
	if got := g.Model(); got != "" {
		t.Fatalf("expected empty model name, got %q", got)
	}
}
