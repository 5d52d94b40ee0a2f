package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fwojciec/agentstream"
	"github.com/google/uuid"
)

// Interface compliance check.
var _ agentstream.Transport = (*Client)(nil)

// Client opens agent runs over HTTP. The response body becomes the
// session's byte source.
type Client struct {
	baseURL    string
	model      string
	chunkSize  int
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the server base URL. A trailing slash is ignored; an
// empty URL keeps [DefaultBaseURL].
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel sets the model used when a request does not name one.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithChunkSize sets the read size of the returned source.
func WithChunkSize(n int) Option {
	return func(c *Client) { c.chunkSize = n }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open posts req and returns the streaming response body as a source. The
// request is expected to be validated by the caller.
func (c *Client) Open(ctx context.Context, req agentstream.Request) (agentstream.Source, error) {
	body, err := EncodeRequest(req, c.model)
	if err != nil {
		return nil, fmt.Errorf("agentapi: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+runPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agentapi: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-ak", req.LLM.AccessKey)

	c.logger.Debug("opening agent run", "url", httpReq.URL.String(), "worker", req.WorkerID)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agentapi: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	return agentstream.NewReaderSource(resp.Body, c.chunkSize), nil
}

// EncodeRequest renders req as the JSON body of an agent run. A missing
// conversation id is replaced by a random UUID and a missing model by
// model.
func EncodeRequest(req agentstream.Request, model string) ([]byte, error) {
	id := req.ConversationID
	if id == "" {
		id = uuid.NewString()
	}
	if req.LLM.Model != "" {
		model = req.LLM.Model
	}
	var question []apiMessage
	for _, m := range req.Question() {
		question = append(question, apiMessage{Role: string(m.Role), Content: m.Content})
	}
	return json.Marshal(apiRequest{
		SessionID: id,
		WorkerID:  req.WorkerID,
		VariableMaps: variableMaps{LLMConfig: llmConfig{
			CwdFormatted: cwdFormatted,
			Model:        model,
			AK:           req.LLM.AccessKey,
			APIURL:       req.LLM.APIURL,
		}},
		Question: question,
		Stream:   true,
	})
}
