package dialog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pedrovictor26/ofix-assistant/internal/extract"
	"github.com/pedrovictor26/ofix-assistant/internal/schedule"
	"github.com/pedrovictor26/ofix-assistant/internal/storage"
)

var weekdayNames = map[int]string{
	1: "segunda-feira",
	2: "terça-feira",
	3: "quarta-feira",
	4: "quinta-feira",
	5: "sexta-feira",
	6: "sábado",
}

var slotQuestions = map[Slot]string{
	SlotService:  "Qual serviço você deseja realizar?",
	SlotVehicle:  "Qual o modelo do veículo?",
	SlotCustomer: "Qual o nome do cliente?",
	SlotDate:     "Para qual dia você quer agendar?",
	SlotTime:     "Qual horário prefere? Atendemos das 7h às 18h.",
}

// renderPrompt echoes what has been collected so far and asks one question
// per missing slot.
func renderPrompt(e extract.Entities, missing []Slot) string {
	var b strings.Builder

	collected := collectedFacts(e)
	if len(collected) > 0 {
		b.WriteString("Anotei até agora: ")
		b.WriteString(strings.Join(collected, ", "))
		b.WriteString(".\n")
	} else {
		b.WriteString("Vamos agendar seu serviço.\n")
	}

	for _, slot := range missing {
		b.WriteString(slotQuestions[slot])
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func collectedFacts(e extract.Entities) []string {
	var facts []string
	if e.ServiceType != "" {
		facts = append(facts, "serviço: "+e.ServiceType)
	}
	if e.VehicleModel != "" {
		facts = append(facts, "veículo: "+e.VehicleModel)
	}
	if e.Plate != "" {
		facts = append(facts, "placa: "+e.Plate)
	}
	if e.CustomerName != "" {
		facts = append(facts, "cliente: "+e.CustomerName)
	}
	if !e.ExplicitDate.IsZero() {
		facts = append(facts, "data: "+e.ExplicitDate.Format("02/01/2006"))
	} else if e.Weekday != 0 {
		facts = append(facts, "dia: "+weekdayNames[e.Weekday])
	}
	if e.Hour != "" {
		facts = append(facts, "horário: "+e.Hour)
	}
	if e.Urgent {
		facts = append(facts, "urgente")
	}
	return facts
}

// renderConfirmation produces the final confirmation message with the
// generated order number.
func renderConfirmation(c schedule.Confirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agendamento confirmado! Ordem de serviço %s.\n", c.Number)
	fmt.Fprintf(&b, "Serviço: %s\n", c.Service)
	fmt.Fprintf(&b, "Veículo: %s", c.VehicleModel)
	if c.Plate != "" {
		fmt.Fprintf(&b, " (placa %s)", c.Plate)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Cliente: %s\n", c.CustomerName)
	fmt.Fprintf(&b, "Data: %s às %s", c.ScheduledAt.Format("02/01/2006"), c.ScheduledAt.Format("15:04"))
	if c.Urgent {
		b.WriteString("\nMarcado como urgente — daremos prioridade.")
	}
	return b.String()
}

// renderFailure maps known commit failures to tailored apologies; anything
// else becomes a generic retry invitation restating the facts we already
// know.
func renderFailure(err error, e extract.Entities) string {
	switch {
	case errors.Is(err, schedule.ErrInvalidDate):
		return "Desculpe, a data informada não é válida para agendamento. " +
			"Pode me dizer novamente o dia desejado?"
	case errors.Is(err, storage.ErrConflict):
		return "Desculpe, já existe um registro com esses dados (placa ou ordem duplicada). " +
			"Verifique as informações e tente novamente."
	case errors.Is(err, storage.ErrNotFound):
		return "Desculpe, não encontrei o cadastro correspondente. " +
			"Pode confirmar o nome do cliente e a placa do veículo?"
	}

	facts := []string{}
	if e.ServiceType != "" {
		facts = append(facts, e.ServiceType)
	}
	if e.VehicleModel != "" {
		facts = append(facts, e.VehicleModel)
	}
	if e.Weekday != 0 {
		facts = append(facts, weekdayNames[e.Weekday])
	} else if !e.ExplicitDate.IsZero() {
		facts = append(facts, e.ExplicitDate.Format("02/01/2006"))
	}

	msg := "Desculpe, não consegui concluir o agendamento agora."
	if len(facts) > 0 {
		msg += " Já tenho: " + strings.Join(facts, ", ") + "."
	}
	return msg + " Pode tentar de novo em instantes?"
}
