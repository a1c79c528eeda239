// Package intent classifies inbound chat messages into routing categories
// using deterministic, ordered keyword tables. No model call is involved;
// classification works offline and always returns a result.
package intent

import "strings"

// Category is the top-level routing category of a message.
type Category string

const (
	CategoryAction       Category = "action"
	CategoryConversation Category = "conversation"
	CategoryGreeting     Category = "greeting"
	CategoryHelp         Category = "help"
)

// Processor indicates where a message should be resolved.
type Processor string

const (
	ProcessorLocal  Processor = "local"
	ProcessorRemote Processor = "remote"
)

// Result is the classification outcome for a single message.
type Result struct {
	Category            Category
	Subtype             string
	Confidence          float64
	Processor           Processor
	RequiresPersistence bool
	Reason              string
}

// rule is one entry of an ordered keyword table. Matching is plain
// case-insensitive substring containment; the first rule with any matching
// keyword wins, so table order is semantic.
type rule struct {
	subtype    string
	keywords   []string
	confidence float64
	persist    bool
}

// problemKeywords are free-text symptom terms. Any hit forces the message
// to the diagnostic conversation path, regardless of other matches: a
// symptom report that happens to contain a scheduling word must never be
// captured by a structured handler.
var problemKeywords = []string{
	"barulho", "ruído", "ruido", "rangendo", "batendo", "estalando",
	"defeito", "quebrou", "quebrado", "parou", "não liga", "nao liga",
	"não pega", "nao pega", "morrendo", "falhando", "apagando",
	"vazamento", "vazando", "pingando", "fumaça", "fumaca",
	"esquentando", "superaquecendo", "estranho", "estranha", "anormal",
	"cheiro de queimado", "luz acesa no painel",
}

// actionRules route to structured local handlers. Ordered by priority;
// estatisticas comes before agendamento so "quantos agendamentos" is not
// captured by the scheduling rule.
var actionRules = []rule{
	{
		subtype:    "estatisticas",
		keywords:   []string{"estatísticas", "estatisticas", "relatório", "relatorio", "faturamento", "resumo do mês", "resumo do mes", "quantos agendamentos"},
		confidence: 0.9,
		persist:    true,
	},
	{
		subtype:    "agendamento",
		keywords:   []string{"agendar", "agendamento", "marcar", "marque", "reservar", "remarcar", "agenda para"},
		confidence: 0.9,
		persist:    true,
	},
	{
		subtype:    "cadastro_cliente",
		keywords:   []string{"cadastrar cliente", "cadastro de cliente", "novo cliente", "registrar cliente"},
		confidence: 0.95,
		persist:    true,
	},
	{
		subtype:    "status_ordem",
		keywords:   []string{"status da ordem", "status do serviço", "status do servico", "andamento da ordem", "minha ordem", "situação da ordem", "situacao da ordem"},
		confidence: 0.85,
		persist:    true,
	},
	{
		subtype:    "estoque",
		keywords:   []string{"estoque", "tem a peça", "tem a peca", "peça disponível", "peca disponivel", "disponibilidade da peça", "disponibilidade da peca"},
		confidence: 0.85,
		persist:    true,
	},
	{
		subtype:    "busca_cliente",
		keywords:   []string{"buscar cliente", "procurar cliente", "dados do cliente", "telefone do cliente", "ficha do cliente"},
		confidence: 0.85,
		persist:    true,
	},
}

// conversationRules route to the remote provider gateway. Ordered.
var conversationRules = []rule{
	{
		subtype:    "diagnostico",
		keywords:   []string{"diagnóstico", "diagnostico", "o que pode ser", "qual o problema", "por que o carro", "porque o carro"},
		confidence: 0.9,
	},
	{
		subtype:    "duvida_tecnica",
		keywords:   []string{"como funciona", "o que é", "o que e ", "diferença entre", "diferenca entre", "para que serve"},
		confidence: 0.85,
	},
	{
		subtype:    "custo",
		keywords:   []string{"quanto custa", "qual o valor", "valor do serviço", "valor do servico", "orçamento", "orcamento", "quanto fica"},
		confidence: 0.85,
	},
	{
		subtype:    "recomendacao",
		keywords:   []string{"recomenda", "vale a pena", "o que você sugere", "o que voce sugere", "devo trocar", "qual o melhor"},
		confidence: 0.85,
	},
	{
		subtype:    "preco_peca",
		keywords:   []string{"preço", "preco", "tabela de preços", "tabela de precos"},
		confidence: 0.85,
	},
}

// greetings match exact or as a prefix of the message.
var greetings = []string{
	"oi", "olá", "ola", "opa", "e aí", "e ai",
	"bom dia", "boa tarde", "boa noite", "tudo bem",
}

// helpKeywords match anywhere in the message.
var helpKeywords = []string{
	"ajuda", "help", "socorro com o sistema", "como usar",
	"o que você faz", "o que voce faz", "o que sabe fazer", "comandos",
}

// Classify maps a message to its routing category. It is pure and never
// fails: empty or unmatched input falls through to a low-confidence
// general conversation result handled remotely.
func Classify(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return defaultResult("mensagem vazia")
	}

	// Symptom override comes first and beats every structured match.
	for _, kw := range problemKeywords {
		if strings.Contains(normalized, kw) {
			return Result{
				Category:   CategoryConversation,
				Subtype:    "diagnostico",
				Confidence: 0.9,
				Processor:  ProcessorRemote,
				Reason:     "termo de sintoma: " + kw,
			}
		}
	}

	for _, r := range actionRules {
		if kw, ok := matchAny(normalized, r.keywords); ok {
			return Result{
				Category:            CategoryAction,
				Subtype:             r.subtype,
				Confidence:          r.confidence,
				Processor:           ProcessorLocal,
				RequiresPersistence: r.persist,
				Reason:              "palavra-chave de ação: " + kw,
			}
		}
	}

	for _, r := range conversationRules {
		if kw, ok := matchAny(normalized, r.keywords); ok {
			return Result{
				Category:   CategoryConversation,
				Subtype:    r.subtype,
				Confidence: r.confidence,
				Processor:  ProcessorRemote,
				Reason:     "palavra-chave de conversa: " + kw,
			}
		}
	}

	for _, g := range greetings {
		if normalized == g || strings.HasPrefix(normalized, g+" ") || strings.HasPrefix(normalized, g+",") || strings.HasPrefix(normalized, g+"!") {
			return Result{
				Category:   CategoryGreeting,
				Subtype:    "saudacao",
				Confidence: 0.95,
				Processor:  ProcessorLocal,
				Reason:     "saudação: " + g,
			}
		}
	}

	for _, h := range helpKeywords {
		if strings.Contains(normalized, h) {
			return Result{
				Category:   CategoryHelp,
				Subtype:    "ajuda",
				Confidence: 0.95,
				Processor:  ProcessorLocal,
				Reason:     "pedido de ajuda: " + h,
			}
		}
	}

	return defaultResult("nenhuma correspondência")
}

func defaultResult(reason string) Result {
	return Result{
		Category:   CategoryConversation,
		Subtype:    "geral",
		Confidence: 0.5,
		Processor:  ProcessorRemote,
		Reason:     reason,
	}
}

func matchAny(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}
