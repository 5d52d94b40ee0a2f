package json

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/agentstream"
	"github.com/oklog/ulid/v2"
)

// envelope is the v1 wire format for a persisted transcript.
type envelope struct {
	Version        int          `json:"version"`
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Question       []messageDTO `json:"question"`
	Content        string       `json:"content"`
	Errors         []string     `json:"errors,omitempty"`
	State          string       `json:"state"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
}

type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewID returns a lexically sortable transcript ID for time t.
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// Path returns the file path of transcript id under dir.
func Path(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

// MarshalTranscript serializes a Transcript in v1 envelope format.
func MarshalTranscript(t agentstream.Transcript) ([]byte, error) {
	if t.ID == "" {
		return nil, fmt.Errorf("transcript id is required: %w", agentstream.ErrValidation)
	}
	env := envelope{
		Version:        1,
		ID:             t.ID,
		ConversationID: t.ConversationID,
		Question:       make([]messageDTO, len(t.Question)),
		Content:        t.Content,
		Errors:         t.Errors,
		State:          t.State.String(),
		StartedAt:      t.StartedAt,
		FinishedAt:     t.FinishedAt,
	}
	for i, m := range t.Question {
		env.Question[i] = messageDTO{Role: string(m.Role), Content: m.Content}
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalTranscript deserializes a Transcript from v1 envelope format.
func UnmarshalTranscript(data []byte) (agentstream.Transcript, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return agentstream.Transcript{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return agentstream.Transcript{}, fmt.Errorf("unsupported transcript version %d", env.Version)
	}
	state, err := parseState(env.State)
	if err != nil {
		return agentstream.Transcript{}, err
	}
	t := agentstream.Transcript{
		ID:             env.ID,
		ConversationID: env.ConversationID,
		Content:        env.Content,
		Errors:         env.Errors,
		State:          state,
		StartedAt:      env.StartedAt,
		FinishedAt:     env.FinishedAt,
	}
	for _, m := range env.Question {
		t.Question = append(t.Question, agentstream.Message{Role: agentstream.Role(m.Role), Content: m.Content})
	}
	return t, nil
}

func parseState(s string) (agentstream.SessionState, error) {
	for _, st := range []agentstream.SessionState{
		agentstream.SessionIdle,
		agentstream.SessionStreaming,
		agentstream.SessionCompleted,
		agentstream.SessionErrored,
	} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown session state %q", s)
}

// Save writes a Transcript atomically to path, creating parent directories.
func Save(path string, t agentstream.Transcript) error {
	data, err := MarshalTranscript(t)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a Transcript from a JSON file.
func Load(path string) (agentstream.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return agentstream.Transcript{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalTranscript(data)
}
