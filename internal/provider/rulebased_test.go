package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRuleBasedAnswers(t *testing.T) {
	r := NewRuleBased()
	ctx := context.Background()

	tests := []struct {
		prompt string
		want   string
	}{
		{"oi", "assistente virtual"},
		{"Bom dia!", "assistente virtual"},
		{"preciso de ajuda", "Posso ajudar"},
		{"obrigado!", "De nada"},
		{"qual o horário de funcionamento?", "das 7h às 18h"},
	}

	for _, tt := range tests {
		gen, err := r.GenerateText(ctx, tt.prompt, Options{})
		if err != nil {
			t.Errorf("GenerateText(%q): %v", tt.prompt, err)
			continue
		}
		if !strings.Contains(gen.Text, tt.want) {
			t.Errorf("GenerateText(%q) = %q, want contains %q", tt.prompt, gen.Text, tt.want)
		}
	}
}

func TestRuleBasedNoAnswer(t *testing.T) {
	r := NewRuleBased()
	_, err := r.GenerateText(context.Background(), "por que o motor esquenta?", Options{})
	if !errors.Is(err, ErrNoAnswer) {
		t.Errorf("err = %v, want ErrNoAnswer", err)
	}
}

func TestRuleBasedCapabilities(t *testing.T) {
	r := NewRuleBased()
	if !r.Supports(CapabilityText) {
		t.Error("rule-based provider must support text")
	}
	for _, c := range []Capability{CapabilityJSON, CapabilityTranscribe, CapabilityEmbed} {
		if r.Supports(c) {
			t.Errorf("Supports(%s) = true, want false", c)
		}
	}
}

func TestParseOrExtractJSON(t *testing.T) {
	raw, err := parseOrExtractJSON(`{"ok":true}`)
	if err != nil {
		t.Fatalf("clean JSON: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("raw = %s", raw)
	}

	raw, err = parseOrExtractJSON("Aqui está:\n{\"ok\":true}\nEspero ter ajudado.")
	if err != nil {
		t.Fatalf("embedded JSON: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("raw = %s", raw)
	}

	if _, err := parseOrExtractJSON("não tem json nenhum aqui"); err == nil {
		t.Error("expected error for non-JSON text")
	}
}
