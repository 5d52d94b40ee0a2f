package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fwojciec/agentstream"
	"github.com/fwojciec/agentstream/agentapi"
	"github.com/fwojciec/agentstream/frame"
	"github.com/fwojciec/agentstream/gjson"
	asjson "github.com/fwojciec/agentstream/json"
	"github.com/fwojciec/agentstream/websocket"
	"github.com/google/uuid"
)

// Payload shapes accepted by --payload.
const (
	payloadJSON      = "json"
	payloadTextDelta = "text-delta"
)

func newFramer(cfg Config) (agentstream.Framer, error) {
	strategy, err := agentstream.ParseStrategy(cfg.Framing)
	if err != nil {
		return nil, err
	}
	return frame.New(strategy, frame.WithTag(cfg.Tag), frame.WithMaxFrameSize(cfg.MaxFrame))
}

func newClassifier(cfg Config) (agentstream.Classifier, error) {
	switch cfg.Payload {
	case "", payloadJSON:
		return asjson.Classifier{}, nil
	case payloadTextDelta:
		return gjson.TextDelta(), nil
	default:
		return nil, fmt.Errorf("unknown payload %q: %w", cfg.Payload, agentstream.ErrValidation)
	}
}

func newSession(cfg Config, sinks agentstream.Sinks, logger *slog.Logger) (*agentstream.Session, error) {
	framer, err := newFramer(cfg)
	if err != nil {
		return nil, err
	}
	classifier, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	return agentstream.NewSession(framer, classifier, sinks,
		agentstream.WithLogger(logger),
		agentstream.WithThrottleInterval(cfg.Throttle),
	), nil
}

func newTransport(cfg Config, logger *slog.Logger) agentstream.Transport {
	if cfg.WebSocket != "" {
		return websocket.New(cfg.WebSocket,
			websocket.WithModel(cfg.LLM.Model),
			websocket.WithLogger(logger),
		)
	}
	return agentapi.New(
		agentapi.WithBaseURL(cfg.BaseURL),
		agentapi.WithModel(cfg.LLM.Model),
		agentapi.WithLogger(logger),
	)
}

// newRequest fills the per-deployment fields of a request.
func newRequest(cfg Config, prompt string) agentstream.Request {
	return agentstream.Request{
		Prompt:   prompt,
		WorkerID: cfg.WorkerID,
		LLM: agentstream.LLMConfig{
			AccessKey: cfg.LLM.AK,
			APIURL:    cfg.LLM.APIURL,
			Model:     cfg.LLM.Model,
		},
	}
}

// ask streams req through a fresh session and, when a transcript
// directory is configured, saves the finished session there. A request
// without a conversation id gets one here so the transcript records the id
// the server saw.
func ask(ctx context.Context, cfg Config, logger *slog.Logger, req agentstream.Request, sinks agentstream.Sinks) error {
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	var tr *agentstream.Transcript
	if cfg.Transcripts != "" {
		now := time.Now()
		tr = agentstream.NewTranscript(asjson.NewID(now), req, now)
		sinks = tr.Record(sinks, time.Now)
	}
	sess, err := newSession(cfg, sinks, logger)
	if err != nil {
		return err
	}
	streamErr := sess.Stream(ctx, newTransport(cfg, logger), req)
	if tr != nil {
		tr.State = sess.State()
		path := asjson.Path(cfg.Transcripts, tr.ID)
		if err := asjson.Save(path, *tr); err != nil {
			logger.Warn("saving transcript", "path", path, "error", err)
		} else {
			logger.Debug("saved transcript", "path", path)
		}
	}
	return streamErr
}
