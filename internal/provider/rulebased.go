package provider

import (
	"context"
	"encoding/json"
	"strings"
)

// RuleBased answers greetings, help requests and a handful of fixed
// workshop questions from templates, entirely offline. It sits first in
// the gateway chain; prompts it cannot answer return ErrNoAnswer so the
// chain falls through to a model.
type RuleBased struct{}

// NewRuleBased creates the local template responder.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

func (r *RuleBased) Name() string { return "rules" }

func (r *RuleBased) Supports(c Capability) bool {
	return c == CapabilityText
}

const helpText = `Posso ajudar com:
- Agendar serviços (ex.: "agendar troca de óleo para o Gol do João na segunda às 14h")
- Consultar o status de uma ordem de serviço
- Tirar dúvidas sobre serviços e manutenção do seu veículo`

// localRule pairs a match predicate with a canned response. Ordered; first
// match wins.
type localRule struct {
	match    func(lower string) bool
	response string
}

var localRules = []localRule{
	{
		match: func(s string) bool {
			for _, g := range []string{"oi", "olá", "ola", "opa", "bom dia", "boa tarde", "boa noite", "e aí", "e ai", "tudo bem"} {
				if s == g || strings.HasPrefix(s, g+" ") || strings.HasPrefix(s, g+",") || strings.HasPrefix(s, g+"!") {
					return true
				}
			}
			return false
		},
		response: "Olá! Sou o assistente virtual da oficina. Posso agendar serviços, consultar ordens e tirar dúvidas sobre o seu veículo. Como posso ajudar?",
	},
	{
		match: func(s string) bool {
			return strings.Contains(s, "ajuda") || strings.Contains(s, "help") ||
				strings.Contains(s, "o que você faz") || strings.Contains(s, "o que voce faz") ||
				strings.Contains(s, "como usar") || strings.Contains(s, "comandos")
		},
		response: helpText,
	},
	{
		match: func(s string) bool {
			return strings.Contains(s, "obrigado") || strings.Contains(s, "obrigada") || strings.Contains(s, "valeu")
		},
		response: "De nada! Qualquer coisa é só chamar.",
	},
	{
		match: func(s string) bool {
			return strings.Contains(s, "horário de funcionamento") || strings.Contains(s, "horario de funcionamento") ||
				strings.Contains(s, "que horas abre") || strings.Contains(s, "que horas fecha")
		},
		response: "Funcionamos de segunda a sábado, das 7h às 18h.",
	},
}

func (r *RuleBased) GenerateText(ctx context.Context, prompt string, opts Options) (Generation, error) {
	lower := strings.ToLower(strings.TrimSpace(prompt))
	for _, rule := range localRules {
		if rule.match(lower) {
			return Generation{Text: rule.response, Model: "rules"}, nil
		}
	}
	return Generation{}, ErrNoAnswer
}

func (r *RuleBased) GenerateJSON(ctx context.Context, prompt string, schema *Schema, opts Options) (json.RawMessage, error) {
	return nil, ErrUnsupported
}

func (r *RuleBased) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return "", ErrUnsupported
}

func (r *RuleBased) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrUnsupported
}
