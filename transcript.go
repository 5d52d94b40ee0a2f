package agentstream

import "time"

// Transcript records one finished session for later inspection.
type Transcript struct {
	ID             string
	ConversationID string
	Question       []Message
	Content        string
	Errors         []string
	State          SessionState
	StartedAt      time.Time
	FinishedAt     time.Time
}

// NewTranscript starts a transcript for req.
func NewTranscript(id string, req Request, now time.Time) *Transcript {
	return &Transcript{
		ID:             id,
		ConversationID: req.ConversationID,
		Question:       req.Question(),
		State:          SessionIdle,
		StartedAt:      now,
	}
}

// Record returns sinks that fill t as the session reports and then forward
// to next. Completion sets Content, FinishedAt and, unless an error was
// seen, the Completed state. Callers with access to the session should
// still copy its final State.
func (t *Transcript) Record(next Sinks, now func() time.Time) Sinks {
	if now == nil {
		now = time.Now
	}
	return Sinks{
		OnMessage:  next.OnMessage,
		OnInterval: next.OnInterval,
		OnError: func(err error) {
			t.Errors = append(t.Errors, err.Error())
			if next.OnError != nil {
				next.OnError(err)
			}
		},
		OnComplete: func(r Result) {
			t.Content = r.Full
			t.FinishedAt = now()
			if len(t.Errors) == 0 {
				t.State = SessionCompleted
			} else {
				t.State = SessionErrored
			}
			if next.OnComplete != nil {
				next.OnComplete(r)
			}
		},
	}
}
