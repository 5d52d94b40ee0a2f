// Package agentapi implements [agentstream.Transport] for the agent run
// endpoint, POST {base}/api/v1/agent/run.
package agentapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fwojciec/agentstream"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the local agent server.
	DefaultBaseURL = "http://127.0.0.1:7001"
	// DefaultModel is sent when a request does not name a model.
	DefaultModel = "claude_sonnet4"

	runPath      = "/api/v1/agent/run"
	cwdFormatted = "/"
	maxErrorBody = 64 << 10
)

type apiRequest struct {
	SessionID    string       `json:"sessionId"`
	WorkerID     string       `json:"workerId"`
	VariableMaps variableMaps `json:"variableMaps"`
	Question     []apiMessage `json:"question"`
	Stream       bool         `json:"stream"`
}

type variableMaps struct {
	LLMConfig llmConfig `json:"llmConfig"`
}

type llmConfig struct {
	CwdFormatted string `json:"cwdFormatted"`
	Model        string `json:"model"`
	AK           string `json:"ak"`
	APIURL       string `json:"ApiUrl"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StatusError is returned by Open when the server answers with a non-2xx
// status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("agentapi: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("agentapi: HTTP %d: %s", e.StatusCode, e.Message)
}

// parseHTTPError extracts a message from an error response. Servers answer
// with {"message": ...}, {"error": ...} or {"error": {"message": ...}};
// anything else is reported as text.
func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("agentapi: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	msg := strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) {
		for _, path := range []string{"message", "error.message", "error", "msg"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
				msg = v.Str
				break
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

// DecodeRequest parses an agent run body as sent by [EncodeRequest]. The
// question may also be a bare string. The result is not validated.
func DecodeRequest(body []byte) (agentstream.Request, error) {
	if !gjson.ValidBytes(body) {
		return agentstream.Request{}, fmt.Errorf("agentapi: invalid request body: %w", agentstream.ErrValidation)
	}
	root := gjson.ParseBytes(body)
	llm := root.Get("variableMaps.llmConfig")
	req := agentstream.Request{
		ConversationID: root.Get("sessionId").String(),
		WorkerID:       root.Get("workerId").String(),
		LLM: agentstream.LLMConfig{
			AccessKey: llm.Get("ak").String(),
			APIURL:    llm.Get("ApiUrl").String(),
			Model:     llm.Get("model").String(),
		},
	}
	switch q := root.Get("question"); {
	case q.IsArray():
		for _, m := range q.Array() {
			req.Messages = append(req.Messages, agentstream.Message{
				Role:    agentstream.Role(m.Get("role").String()),
				Content: m.Get("content").String(),
			})
		}
	case q.Type == gjson.String:
		req.Prompt = q.Str
	}
	return req, nil
}
