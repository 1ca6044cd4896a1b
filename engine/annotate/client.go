package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/docuchat/docuchat/engine/domain"
	"github.com/docuchat/docuchat/pkg/resilience"
)

// Client calls the model service over HTTP. It implements Embedder and
// hands out language-bound Annotators.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	limiter *resilience.Limiter
	breaker *resilience.Breaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLimiter rate-limits model service calls.
func WithLimiter(l *resilience.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithBreaker trips model service calls through a circuit breaker.
func WithBreaker(b *resilience.Breaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// NewClient creates a model service client. model names the embedding model
// the deployment was provisioned with; the collection dimensionality must
// match its output.
func NewClient(baseURL, model string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type embedRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type embedResponse struct {
	Vector []float64 `json:"vector"`
}

type annotateRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// Embed implements Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("annotate: embed empty text: %w", domain.ErrEmbedding)
	}

	var result embedResponse
	err := c.call(ctx, "/embed", embedRequest{Model: c.model, Text: text}, &result)
	if err != nil {
		return nil, fmt.Errorf("annotate: embed: %v: %w", err, domain.ErrEmbedding)
	}

	out := make([]float32, len(result.Vector))
	for i, v := range result.Vector {
		out[i] = float32(v)
	}
	return out, nil
}

// Tagger returns an Annotator bound to the given language.
func (c *Client) Tagger(lang string) Annotator {
	return &langTagger{client: c, lang: lang}
}

type langTagger struct {
	client *Client
	lang   string
}

func (t *langTagger) Annotate(ctx context.Context, text string) (*domain.Annotation, error) {
	var result domain.Annotation
	err := t.client.call(ctx, "/annotate", annotateRequest{Text: text, Lang: t.lang}, &result)
	if err != nil {
		return nil, fmt.Errorf("annotate: tag %s: %v: %w", t.lang, err, domain.ErrEmbedding)
	}
	return &result, nil
}

// call posts a JSON body and decodes the JSON response, passing through the
// limiter and breaker when configured.
func (c *Client) call(ctx context.Context, path string, in, out any) error {
	do := func(ctx context.Context) error {
		body, err := json.Marshal(in)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	wrapped := do
	if c.breaker != nil {
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return c.breaker.Call(ctx, inner)
		}
	}
	if c.limiter != nil {
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return c.limiter.CallWait(ctx, inner)
		}
	}
	return wrapped(ctx)
}
