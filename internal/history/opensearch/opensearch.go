package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/pulsr/internal/history"
)

const defaultTimeout = 5 * time.Second

// Sink indexes heartbeat events as flat documents via the OpenSearch REST API.
// Each event is POSTed to baseURL/index/_doc.
type Sink struct {
	client   *http.Client
	docURL   string
	username string
	password string
}

type Option func(*Sink)

// WithBasicAuth sets credentials sent with every request.
func WithBasicAuth(user, pass string) Option {
	return func(s *Sink) { s.username, s.password = user, pass }
}

// WithHTTPClient replaces the default client (5s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

func New(baseURL, index string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: defaultTimeout},
		docURL: fmt.Sprintf("%s/%s/_doc", strings.TrimRight(baseURL, "/"), strings.Trim(index, "/")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// document mirrors the heartbeat_history table columns of the SQL sinks.
type document struct {
	Timestamp         time.Time `json:"@timestamp"`
	Event             string    `json:"event"`
	ProcessID         string    `json:"process_id"`
	KeepAlive         bool      `json:"keep_alive"`
	LastHeartbeat     time.Time `json:"last_heartbeat"`
	ExpirationSeconds int       `json:"expiration_seconds"`
	AliveAtEvent      bool      `json:"alive_at_event"`
}

func toDocument(e history.Event) document {
	rec := e.Record
	return document{
		Timestamp:         e.OccurredAt.UTC(),
		Event:             string(e.Type),
		ProcessID:         rec.ID,
		KeepAlive:         rec.KeepAlive,
		LastHeartbeat:     rec.LastHeartbeat.UTC(),
		ExpirationSeconds: rec.ExpirationSeconds,
		AliveAtEvent:      rec.IsAliveAt(e.OccurredAt),
	}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(toDocument(e))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.docURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
