package llm

// Roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the text of the message.
	Content string

	// Images are attached to user messages for vision-capable models.
	// Providers without vision support reject requests that carry images.
	Images []Image
}

// Image is an inline image attachment.
type Image struct {
	// MIMEType is e.g. "image/jpeg".
	MIMEType string
	Data     []byte
}

// Usage holds token accounting for one request/response pair.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	ContextWindow   int
	MaxOutputTokens int
	SupportsVision  bool
}

// HasImages reports whether any message in msgs carries an image.
func HasImages(msgs []Message) bool {
	for _, m := range msgs {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}
