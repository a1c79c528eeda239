// Package extract pulls scheduling entities out of free-form Portuguese
// messages. Extraction is pure dictionary and regex matching: it never
// fails, and fields that are not present in the text simply stay unset.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Entities is the partial slot set extracted from a single message. Zero
// values mean "not mentioned". Weekday is ISO-like 1 (Monday) through
// 6 (Saturday); the workshop does not open on Sundays.
type Entities struct {
	CustomerName string
	VehicleModel string
	Plate        string
	Weekday      int
	ExplicitDate time.Time
	Hour         string
	ServiceType  string
	Urgent       bool
}

// Merge combines e with a newer delta, right-biased: fields set in delta
// overwrite, fields unset in delta leave the stored value untouched. A
// field once set is never silently cleared.
func (e Entities) Merge(delta Entities) Entities {
	out := e
	if delta.CustomerName != "" {
		out.CustomerName = delta.CustomerName
	}
	if delta.VehicleModel != "" {
		out.VehicleModel = delta.VehicleModel
	}
	if delta.Plate != "" {
		out.Plate = delta.Plate
	}
	if delta.Weekday != 0 {
		out.Weekday = delta.Weekday
	}
	if !delta.ExplicitDate.IsZero() {
		out.ExplicitDate = delta.ExplicitDate
	}
	if delta.Hour != "" {
		out.Hour = delta.Hour
	}
	if delta.ServiceType != "" {
		out.ServiceType = delta.ServiceType
	}
	if delta.Urgent {
		out.Urgent = true
	}
	return out
}

// weekdayEntry maps spoken weekday variants to their 1..6 index. Ordered;
// first match wins.
type weekdayEntry struct {
	day   int
	names []string
}

var weekdays = []weekdayEntry{
	{1, []string{"segunda-feira", "segunda feira", "segunda"}},
	{2, []string{"terça-feira", "terça", "terca-feira", "terca feira", "terca"}},
	{3, []string{"quarta-feira", "quarta feira", "quarta"}},
	{4, []string{"quinta-feira", "quinta feira", "quinta"}},
	{5, []string{"sexta-feira", "sexta feira", "sexta"}},
	{6, []string{"sábado", "sabado"}},
}

// serviceEntry maps a canonical service name to its synonyms. Ordered so
// that specific services win over generic single-word synonyms.
type serviceEntry struct {
	canonical string
	synonyms  []string
}

var services = []serviceEntry{
	{"troca de óleo", []string{"troca de óleo", "troca de oleo", "trocar o óleo", "trocar o oleo", "trocar óleo", "trocar oleo", "óleo", "oleo"}},
	{"revisão", []string{"revisão geral", "revisao geral", "revisão", "revisao", "revisar"}},
	{"alinhamento", []string{"alinhamento", "alinhar"}},
	{"balanceamento", []string{"balanceamento", "balancear"}},
	{"manutenção de freios", []string{"troca de pastilha", "pastilha", "freios", "freio"}},
	{"troca de pneu", []string{"troca de pneu", "pneus", "pneu"}},
	{"suspensão", []string{"suspensão", "suspensao", "amortecedor"}},
	{"troca de bateria", []string{"bateria"}},
}

// vehicleModels is the fixed model vocabulary, matched on word boundaries.
// Longer names come before their prefixes (Golf before Gol).
var vehicleModels = []string{
	"Golf", "Gol", "Polo", "Fox", "Saveiro", "Voyage",
	"Palio", "Uno", "Strada", "Argo", "Mobi", "Toro",
	"Onix", "Celta", "Corsa", "Prisma", "Cruze", "S10",
	"Ka", "Fiesta", "Focus", "EcoSport", "Ranger",
	"Civic", "Fit", "City", "HR-V",
	"Corolla", "Etios", "Hilux", "Yaris",
	"HB20", "Creta", "Tucson",
	"Sandero", "Logan", "Duster", "Kwid",
	"Compass", "Renegade",
}

var (
	// RE2's \b is ASCII-only, so "às" needs an explicit start-or-space
	// anchor instead of a word boundary.
	timePattern     = regexp.MustCompile(`(?i)(?:(?:^|\s)às\s+(\d{1,2})\b|\bas\s+(\d{1,2})\b|\b(\d{1,2})\s*(?:h\b|hs\b|horas?\b|:00\b))`)
	platePattern    = regexp.MustCompile(`(?i)\b([a-z]{3})-?(\d{4})\b`)
	plateLabel      = regexp.MustCompile(`(?i)placa\s*:?\s*([a-z]{3})-?(\d{4})`)
	datePattern     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	nameLabel       = regexp.MustCompile(`(?i)(?:nome|cliente)\s*:\s*([\p{Lu}][\p{L}]+(?:\s+[\p{Lu}][\p{L}]+)*)`)
	nameContextual  = regexp.MustCompile(`(?:\bdo|\bda|\bpara o|\bpara a|\bpro|\bpra)\s+([\p{Lu}][\p{Ll}]+(?:\s+[\p{Lu}][\p{Ll}]+)*)`)
	serviceFallback = regexp.MustCompile(`(?i)(?:fazer|preciso(?:\s+de)?|quero|gostaria\s+de)\s+(?:uma?\s+)?([\p{Ll}][\p{Ll}à-ú ]{2,40})`)
)

var urgencyTerms = []string{
	"urgente", "urgência", "urgencia", "emergência", "emergencia",
	"o quanto antes", "para hoje", "pra hoje", "socorro",
}

// Extract parses every recognizable entity out of text. Vehicle model
// detection runs before customer name detection: the model phrase is
// stripped from the text before name matching so "para o Gol do João"
// yields João, not Gol.
func Extract(text string) Entities {
	return extractAt(text, time.Now())
}

// extractAt is Extract with an injected clock for date defaulting.
func extractAt(text string, now time.Time) Entities {
	var e Entities
	if strings.TrimSpace(text) == "" {
		return e
	}
	lower := strings.ToLower(text)

	e.Weekday = extractWeekday(lower)
	e.Hour = extractHour(text)
	e.ServiceType = extractService(lower)
	e.VehicleModel = extractModel(text)
	e.Plate = extractPlate(text)
	e.ExplicitDate = extractDate(text, now)
	e.CustomerName = extractName(text, e.VehicleModel)
	e.Urgent = containsAny(lower, urgencyTerms)

	return e
}

func extractWeekday(lower string) int {
	for _, w := range weekdays {
		for _, name := range w.names {
			if strings.Contains(lower, name) {
				return w.day
			}
		}
	}
	return 0
}

// extractHour accepts an hour written as "14h", "14 horas", "14:00" or
// "às 14", normalizes it to "HH:00" and rejects anything outside the
// workshop's 7..18 service window.
func extractHour(text string) string {
	m := timePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	if raw == "" {
		raw = m[3]
	}
	hour, err := strconv.Atoi(raw)
	if err != nil || hour < 7 || hour > 18 {
		return ""
	}
	return padHour(hour) + ":00"
}

func padHour(h int) string {
	if h < 10 {
		return "0" + strconv.Itoa(h)
	}
	return strconv.Itoa(h)
}

func extractService(lower string) string {
	for _, s := range services {
		for _, syn := range s.synonyms {
			if strings.Contains(lower, syn) {
				return s.canonical
			}
		}
	}
	if m := serviceFallback.FindStringSubmatch(lower); m != nil {
		candidate := strings.TrimSpace(m[1])
		// Cut at the first connective so "fazer revisao na segunda"
		// style captures don't swallow the rest of the sentence.
		for _, stop := range []string{" na ", " no ", " para ", " às ", " as ", " amanhã", " amanha", " hoje"} {
			if idx := strings.Index(candidate, stop); idx > 0 {
				candidate = candidate[:idx]
			}
		}
		candidate = strings.TrimSpace(candidate)
		if len(candidate) >= 3 && candidate != "agendar" && candidate != "marcar" {
			return candidate
		}
	}
	return ""
}

func extractModel(text string) string {
	for _, model := range vehicleModels {
		re := modelPattern(model)
		if re.MatchString(text) {
			return model
		}
	}
	return ""
}

var modelPatterns = buildModelPatterns()

func buildModelPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(vehicleModels))
	for _, model := range vehicleModels {
		patterns[model] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(model) + `\b`)
	}
	return patterns
}

func modelPattern(model string) *regexp.Regexp {
	return modelPatterns[model]
}

// extractName finds the customer name either from an explicit
// "Nome:"/"Cliente:" label or from a preposition pattern. Any detected
// vehicle model phrase is removed first, and a candidate equal to a known
// model is discarded, so model names are never mistaken for people.
func extractName(text, detectedModel string) string {
	if m := nameLabel.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	searchText := text
	if detectedModel != "" {
		searchText = modelPattern(detectedModel).ReplaceAllString(searchText, "")
	}

	for _, m := range nameContextual.FindAllStringSubmatch(searchText, -1) {
		candidate := strings.TrimSpace(m[1])
		if candidate == "" || isVehicleModel(candidate) {
			continue
		}
		return candidate
	}
	return ""
}

func isVehicleModel(candidate string) bool {
	for _, model := range vehicleModels {
		if strings.EqualFold(candidate, model) {
			return true
		}
	}
	return false
}

func extractPlate(text string) string {
	m := plateLabel.FindStringSubmatch(text)
	if m == nil {
		m = platePattern.FindStringSubmatch(text)
	}
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1]) + "-" + m[2]
}

// extractDate parses DD/MM or DD/MM/YYYY. The year defaults to the current
// one; dates that don't exist on the calendar are discarded silently.
func extractDate(text string, now time.Time) time.Time {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := now.Year()
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	if d.Day() != day || d.Month() != time.Month(month) {
		// Rolled over: 31/02 style input.
		return time.Time{}
	}
	return d
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
