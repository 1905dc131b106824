package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"realestate-bot/internal/domain"
)

const (
	noListingsText    = "No hay propiedades disponibles en este momento."
	emptyAnswerText   = "Disculpá, hubo un error procesando tu consulta."
	unparseableText   = "Disculpá, no pude procesar tu consulta. ¿Podrías reformularla?"
	promptListingHead = "Propiedades disponibles:"
)

var argentina = language.MustParse("es-AR")

type promptContext struct {
	agencyName string
	webURL     string
}

// buildPromptMessages assembles policy, listing, prior history and the
// current combined message, in that order.
func buildPromptMessages(pc promptContext, listings []domain.Property, history []domain.ChatMessage, question string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+3)
	messages = append(messages,
		domain.ChatMessage{Role: domain.RoleSystem, Content: buildPolicyPrompt(pc)},
		domain.ChatMessage{Role: domain.RoleSystem, Content: promptListingHead + "\n" + formatListings(listings)},
	)
	for _, m := range history {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, m)
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: question})
}

func buildPolicyPrompt(pc promptContext) string {
	return strings.Join([]string{
		fmt.Sprintf("Sos un asistente inmobiliario virtual de %s (%s).", pc.agencyName, pc.webURL),
		"Tu trabajo es ayudar a personas que consultan por WhatsApp sobre propiedades en venta o alquiler.",
		"",
		"Instrucciones:",
		behaviorRules(pc),
		"",
		"Formato de respuesta:",
		outputContract(),
	}, "\n")
}

func behaviorRules(pc promptContext) string {
	return strings.Join([]string{
		"- Respondé en español argentino, con un tono cordial y profesional.",
		"- Cuando pregunten por propiedades, buscá en el listado disponible y recomendá las más relevantes.",
		"- Incluí los datos clave: ubicación, ambientes, superficie y precio.",
		"- Si hay propiedades que coinciden, indicá sus IDs para que el sistema envíe las fotos.",
		"- Cuando sea relevante, compartí el link de la web: " + pc.webURL,
		fmt.Sprintf("- Para coordinar una visita o consultas específicas, sugerí contactar a un agente de %s.", pc.agencyName),
		"- Sé conciso: los mensajes de WhatsApp deben ser breves y fáciles de leer.",
		"- Si nada coincide, decilo amablemente y sugerí ampliar la búsqueda.",
		"- Tené en cuenta la conversación previa con el cliente.",
		"- No inventes propiedades que no estén en el listado.",
	}, "\n")
}

func outputContract() string {
	return `Respondé SOLO con un JSON válido con esta estructura: {"texto": "mensaje para el cliente", "propiedadIds": ["id1", "id2"]}. ` +
		`"propiedadIds" lista las propiedades cuyas fotos hay que enviar; usá un array vacío si no corresponde enviar fotos.`
}

// formatListings renders one line per property. Zero rooms, area and price
// are left out rather than shown as 0.
func formatListings(listings []domain.Property) string {
	if len(listings) == 0 {
		return noListingsText
	}
	p := message.NewPrinter(argentina)
	lines := make([]string, 0, len(listings))
	for _, prop := range listings {
		parts := []string{fmt.Sprintf("[%s] %s - %s", prop.ID, prop.Kind, prop.Location)}
		if prop.Rooms > 0 {
			parts = append(parts, fmt.Sprintf("%d amb", prop.Rooms))
		}
		if prop.Area > 0 {
			parts = append(parts, strconv.FormatFloat(prop.Area, 'f', -1, 64)+"m²")
		}
		if prop.Price > 0 {
			parts = append(parts, formatPrice(p, prop))
		}
		if prop.Description != "" {
			parts = append(parts, prop.Description)
		}
		lines = append(lines, strings.Join(parts, " | "))
	}
	return strings.Join(lines, "\n")
}

// photoCaption is the one-line summary sent with a property's first photo.
func photoCaption(prop domain.Property) string {
	parts := []string{fmt.Sprintf("%s - %s", prop.Kind, prop.Location)}
	if prop.Rooms > 0 {
		parts = append(parts, fmt.Sprintf("%d amb", prop.Rooms))
	}
	if prop.Price > 0 {
		parts = append(parts, formatPrice(message.NewPrinter(argentina), prop))
	}
	return strings.Join(parts, " | ")
}

func formatPrice(p *message.Printer, prop domain.Property) string {
	return string(prop.Currency) + " " + p.Sprint(number.Decimal(prop.Price, number.MaxFractionDigits(3)))
}

type answerPayload struct {
	Text        *string         `json:"texto"`
	PropertyIDs json.RawMessage `json:"propiedadIds"`
}

// parseAnswer never fails: output that is not a JSON object becomes the
// reply text with no property ids.
func parseAnswer(raw string) domain.Answer {
	trimmed := stripCodeFence(strings.TrimSpace(raw))
	if trimmed == "" {
		return domain.Answer{Text: unparseableText, PropertyIDs: []string{}}
	}

	var payload answerPayload
	if !strings.HasPrefix(trimmed, "{") {
		return domain.Answer{Text: strings.TrimSpace(raw), PropertyIDs: []string{}}
	}
	if err := json.NewDecoder(bytes.NewBufferString(trimmed)).Decode(&payload); err != nil {
		return domain.Answer{Text: strings.TrimSpace(raw), PropertyIDs: []string{}}
	}

	out := domain.Answer{PropertyIDs: decodeIDs(payload.PropertyIDs)}
	if payload.Text != nil && strings.TrimSpace(*payload.Text) != "" {
		out.Text = strings.TrimSpace(*payload.Text)
	} else {
		out.Text = emptyAnswerText
	}
	return out
}

// decodeIDs accepts an array of strings or numbers; anything else yields no ids.
func decodeIDs(raw json.RawMessage) []string {
	var items []any
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return []string{}
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				ids = append(ids, s)
			}
		case float64:
			ids = append(ids, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return ids
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
