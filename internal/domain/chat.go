package domain

// Conversation roles recorded in history and sent to the language model.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the history
// store and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer is the structured reply expected from the language model.
type Answer struct {
	Text        string   `json:"texto"`
	PropertyIDs []string `json:"propiedadIds"`
}
