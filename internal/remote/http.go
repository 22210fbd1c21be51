package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/colegioprep/prepsync/internal/record"
)

// envelope is the response wrapper the endpoint returns for every action.
type envelope struct {
	OK      bool                 `json:"ok"`
	Payload *record.LessonRecord `json:"payload"`
	Error   string               `json:"error,omitempty"`
}

// HTTPGateway talks to an Apps-Script-style web endpoint:
//
//	GET {base}?action=get&key=K          -> {ok, payload, error}
//	GET {base}?action=save&data=<json>   -> {ok, error}
//
// Saves go over GET with the serialized record in the query string because
// that is what the deployed endpoint accepts; oversized payloads are a known
// limitation of that transport, reported as ErrUnavailable like any other
// transport failure.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

// NewHTTPGateway creates a gateway for the given endpoint URL.
// If client is nil, a default client with a 15s timeout is used.
// If logger is nil, a default logger writing to stderr is used.
func NewHTTPGateway(baseURL string, client *http.Client, logger *log.Logger) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &HTTPGateway{
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

// Fetch implements Gateway.Fetch.
func (g *HTTPGateway) Fetch(ctx context.Context, key string) (*record.LessonRecord, error) {
	env, err := g.call(ctx, url.Values{
		"action": {"get"},
		"key":    {key},
	})
	if err != nil {
		return nil, err
	}

	// No ok flag or no payload: the store has nothing for this key.
	if !env.OK || env.Payload == nil {
		return nil, nil
	}

	// A payload without exactly 5 day entries is unusable; treat it as
	// absent rather than hand a partial record to the engine.
	if err := env.Payload.Validate(); err != nil {
		g.logger.Printf("Discarding malformed payload for %s: %v", key, err)
		return nil, nil
	}

	return env.Payload, nil
}

// Persist implements Gateway.Persist.
func (g *HTTPGateway) Persist(ctx context.Context, rec *record.LessonRecord) error {
	data, err := rec.Marshal()
	if err != nil {
		return err
	}

	env, err := g.call(ctx, url.Values{
		"action": {"save"},
		"data":   {string(data)},
	})
	if err != nil {
		return err
	}
	if !env.OK {
		if env.Error != "" {
			return fmt.Errorf("remote rejected save for %s: %s", rec.Key, env.Error)
		}
		return fmt.Errorf("remote rejected save for %s", rec.Key)
	}
	return nil
}

// call performs one GET round trip and decodes the response envelope.
func (g *HTTPGateway) call(ctx context.Context, params url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build remote request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	return &env, nil
}
