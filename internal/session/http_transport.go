package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"github.com/ashureev/agentdesk/internal/domain"
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// HTTPTransport talks to the chat server over /api/chat (SSE) and /api/history.
// Its cookie jar keeps the anonymous device id across calls.
type HTTPTransport struct {
	baseURL   string
	client    *http.Client
	principal string
	header    string
}

// TransportOption customizes an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces the underlying client. Its Jar is set if nil.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithPrincipal asserts an authenticated user through header, as a trusted upstream would.
func WithPrincipal(header, userID string) TransportOption {
	return func(t *HTTPTransport) {
		t.header = header
		t.principal = userID
	}
}

// NewHTTPTransport creates a transport for the server at baseURL.
func NewHTTPTransport(baseURL string, opts ...TransportOption) (*HTTPTransport, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &domain.ValidationError{Field: "server", Reason: "must be an absolute URL"}
	}

	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		t.client.Jar = jar
	}
	return t, nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if t.principal != "" && t.header != "" {
		req.Header.Set(t.header, t.principal)
	}
	return req, nil
}

// Chat posts the request and yields the server's events in order.
func (t *HTTPTransport) Chat(ctx context.Context, creq ChatRequest) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		body, err := json.Marshal(creq)
		if err != nil {
			yield(Event{}, fmt.Errorf("marshal chat request: %w", err))
			return
		}
		req, err := t.newRequest(ctx, http.MethodPost, "/api/chat", bytes.NewReader(body))
		if err != nil {
			yield(Event{}, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := t.client.Do(req)
		if err != nil {
			yield(Event{}, &domain.TransportError{Op: "chat", Err: err})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield(Event{}, statusError(resp))
			return
		}

		r := newSSEReader(resp.Body)
		for {
			name, data, err := r.readEvent()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield(Event{}, &domain.TransportError{Op: "read stream", Err: err})
				return
			}
			if !yield(Event{Type: name, Data: data}, nil) {
				return
			}
		}
	}
}

type historyResponse struct {
	AgentID  string        `json:"agentId"`
	Messages []domain.Turn `json:"messages"`
}

// History fetches the caller's recent turns with agentID, oldest first.
func (t *HTTPTransport) History(ctx context.Context, agentID string, limit int) ([]domain.Turn, error) {
	q := url.Values{}
	q.Set("agentId", agentID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out historyResponse
	if err := t.getJSON(ctx, "/api/history?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// AgentList is the server's agent catalog for this caller.
type AgentList struct {
	DefaultAgentID string                   `json:"defaultAgentId"`
	Agents         []domain.AgentDefinition `json:"agents"`
}

// Agents lists the agents visible to the caller.
func (t *HTTPTransport) Agents(ctx context.Context) (AgentList, error) {
	var out AgentList
	err := t.getJSON(ctx, "/api/agents", &out)
	return out, err
}

func (t *HTTPTransport) getJSON(ctx context.Context, path string, v any) error {
	req, err := t.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return &domain.TransportError{Op: "get " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: body.Error}
}

// sseReader parses server-sent events.
type sseReader struct {
	reader *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{reader: bufio.NewReader(r)}
}

// readEvent returns the next event's name and data. Multiple data lines are
// joined with newlines. It returns io.EOF when the stream ends.
func (s *sseReader) readEvent() (string, []byte, error) {
	var name string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", nil, err
		}
		eof := err != nil

		line = bytes.TrimRight(line, "\r\n")
		switch {
		case len(line) == 0:
			if len(dataLines) > 0 {
				return name, bytes.Join(dataLines, []byte("\n")), nil
			}
			name = ""
		case bytes.HasPrefix(line, []byte("event:")):
			name = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			dataLines = append(dataLines, data)
		}

		if eof {
			if len(dataLines) > 0 {
				return name, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, io.EOF
		}
	}
}
