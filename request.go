package agentstream

// Request describes one agent run. Transports use their own defaults when
// fields are zero.
type Request struct {
	// Question is either a single prompt (Prompt) or a full history
	// (Messages). Messages wins when both are set.
	Prompt   string
	Messages []Message

	ConversationID string // empty = transport generates one
	WorkerID       string
	LLM            LLMConfig
}

// LLMConfig is forwarded to the agent server as variableMaps.llmConfig.
type LLMConfig struct {
	AccessKey string // also sent as the x-ak header
	APIURL    string
	Model     string // empty = transport default
}

// Question returns the request's question as a message list. A bare prompt
// becomes a single user message.
func (r Request) Question() []Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	if r.Prompt == "" {
		return nil
	}
	return []Message{UserMessage(r.Prompt)}
}
