// Package assistant is the engine's public entry point: it classifies each
// inbound message and routes it to the slot-filling dialogue, a local
// structured handler, or the provider gateway.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pedrovictor26/ofix-assistant/internal/dialog"
	"github.com/pedrovictor26/ofix-assistant/internal/gateway"
	"github.com/pedrovictor26/ofix-assistant/internal/intent"
	"github.com/pedrovictor26/ofix-assistant/internal/storage"
)

// Result is the uniform outcome of routing one message.
type Result struct {
	Response     string           `json:"response"`
	ProcessedBy  intent.Processor `json:"processedBy"`
	Done         bool             `json:"done"`
	SideEffectID string           `json:"sideEffectId,omitempty"`
}

// TurnHandler drives the scheduling dialogue.
type TurnHandler interface {
	HandleTurn(ctx context.Context, text, subjectID string) dialog.Turn
}

// Sender dispatches prompts through the provider gateway.
type Sender interface {
	Send(ctx context.Context, req gateway.Request) (gateway.Response, error)
}

// Records is the read-side persistence the local action handlers use.
type Records interface {
	FindAppointmentByNumber(number string) (storage.Appointment, error)
	CountAppointments() (int, error)
}

// SessionChecker reports whether a subject has a scheduling dialogue in
// flight.
type SessionChecker interface {
	Has(subjectID string) bool
}

// Assistant routes messages. Classification and extraction are pure, so a
// single Assistant serves all subjects concurrently; per-subject ordering
// is enforced inside the dialogue controller.
type Assistant struct {
	dialog   TurnHandler
	gw       Sender
	records  Records
	sessions SessionChecker
}

// New creates an Assistant.
func New(d TurnHandler, gw Sender, records Records, sessions SessionChecker) *Assistant {
	return &Assistant{dialog: d, gw: gw, records: records, sessions: sessions}
}

// cacheableSubtypes are read-mostly conversation prompts whose remote
// responses may be memoized. Diagnostics are deliberately excluded: a
// symptom report is not reusable content.
var cacheableSubtypes = map[string]bool{
	"duvida_tecnica": true,
	"custo":          true,
	"recomendacao":   true,
	"preco_peca":     true,
}

// RouteMessage classifies text and resolves it. Collaborator failures never
// escape: every path returns a user-presentable response.
//
// A subject with a scheduling dialogue in flight stays in it: follow-up
// answers like "para o João" carry no action keyword and would otherwise
// misclassify as conversation, stranding the dialogue.
func (a *Assistant) RouteMessage(ctx context.Context, text, subjectID string) Result {
	if a.sessions != nil && a.sessions.Has(subjectID) {
		return a.scheduleTurn(ctx, text, subjectID)
	}

	res := intent.Classify(text)
	slog.Debug("message classified",
		"subject", subjectID,
		"category", res.Category,
		"subtype", res.Subtype,
		"confidence", res.Confidence,
		"processor", res.Processor,
	)

	if res.Category == intent.CategoryAction {
		return a.handleAction(ctx, res, text, subjectID)
	}

	return a.handleConversation(ctx, res, text)
}

func (a *Assistant) handleAction(ctx context.Context, res intent.Result, text, subjectID string) Result {
	switch res.Subtype {
	case "agendamento":
		return a.scheduleTurn(ctx, text, subjectID)
	case "status_ordem":
		return a.handleOrderStatus(text)
	case "estatisticas":
		return a.handleStatistics()
	case "cadastro_cliente":
		return localReply("Para cadastrar um cliente, me informe o nome completo e o telefone. " +
			"Exemplo: \"Cadastrar cliente Nome: Maria Silva, telefone 11 99999-0000\".")
	case "estoque":
		return localReply("Me diga qual peça você procura que eu verifico a disponibilidade no estoque.")
	case "busca_cliente":
		return localReply("Me informe o nome do cliente que você quer consultar.")
	default:
		return localReply("Entendi que você quer uma ação, mas não reconheci qual. Pode reformular?")
	}
}

// scheduleTurn hands one message of a scheduling dialogue to the controller.
func (a *Assistant) scheduleTurn(ctx context.Context, text, subjectID string) Result {
	turn := a.dialog.HandleTurn(ctx, text, subjectID)
	return Result{
		Response:     turn.Response,
		ProcessedBy:  intent.ProcessorLocal,
		Done:         turn.Done,
		SideEffectID: turn.ReferenceID,
	}
}

var orderNumberPattern = regexp.MustCompile(`(?i)\b(?:os-?)?(\d{1,6})\b`)

func (a *Assistant) handleOrderStatus(text string) Result {
	m := orderNumberPattern.FindStringSubmatch(text)
	if m == nil {
		return localReply("Qual o número da ordem de serviço? Exemplo: OS-000042.")
	}

	n, _ := strconv.Atoi(m[1])
	number := fmt.Sprintf("OS-%06d", n)
	appt, err := a.records.FindAppointmentByNumber(number)
	if errors.Is(err, storage.ErrNotFound) {
		return localReply(fmt.Sprintf("Não encontrei a ordem %s. Confira o número, por favor.", number))
	}
	if err != nil {
		slog.Warn("order status lookup failed", "number", number, "error", err)
		return localReply("Não consegui consultar a ordem agora. Pode tentar de novo em instantes?")
	}

	return localReply(fmt.Sprintf(
		"Ordem %s: %s, agendada para %s às %s.",
		appt.Number, appt.Service,
		appt.ScheduledAt.Format("02/01/2006"), appt.ScheduledAt.Format("15:04"),
	))
}

func (a *Assistant) handleStatistics() Result {
	total, err := a.records.CountAppointments()
	if err != nil {
		slog.Warn("statistics query failed", "error", err)
		return localReply("Não consegui gerar as estatísticas agora. Pode tentar de novo em instantes?")
	}
	return localReply(fmt.Sprintf("Temos %d agendamentos registrados no sistema.", total))
}

func (a *Assistant) handleConversation(ctx context.Context, res intent.Result, text string) Result {
	req := gateway.Request{
		Prompt:    buildPrompt(res, text),
		Cacheable: cacheableSubtypes[res.Subtype],
	}
	if res.Processor == intent.ProcessorLocal {
		// Greetings and help resolve on the rule-based provider without
		// touching the network.
		req.Preferred = "rules"
		req.Prompt = text
	}

	resp, err := a.gw.Send(ctx, req)
	if err != nil {
		slog.Warn("gateway dispatch failed", "subtype", res.Subtype, "error", err)
		return Result{
			Response:    "Desculpe, estou com dificuldade para responder agora. Pode tentar novamente em alguns minutos?",
			ProcessedBy: res.Processor,
		}
	}

	processedBy := intent.ProcessorRemote
	if resp.Provider == "rules" {
		processedBy = intent.ProcessorLocal
	}
	return Result{Response: resp.Text, ProcessedBy: processedBy}
}

// buildPrompt frames the user's message with its classified subtype so the
// model answers in the right register.
func buildPrompt(res intent.Result, text string) string {
	var framing string
	switch res.Subtype {
	case "diagnostico":
		framing = "O cliente descreveu um possível problema no veículo. Dê hipóteses prováveis e oriente os próximos passos:"
	case "duvida_tecnica":
		framing = "O cliente tem uma dúvida técnica sobre manutenção automotiva. Explique de forma simples:"
	case "custo", "preco_peca":
		framing = "O cliente quer uma noção de custo. Dê uma faixa de valores típica no Brasil e explique do que depende:"
	case "recomendacao":
		framing = "O cliente quer uma recomendação de manutenção. Seja objetivo:"
	default:
		framing = "Mensagem do cliente da oficina:"
	}
	return strings.TrimSpace(framing + "\n\n" + text)
}

func localReply(text string) Result {
	return Result{Response: text, ProcessedBy: intent.ProcessorLocal}
}
