package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/store"
)

// requestTimeout bounds each HTTP call when the caller's context has no
// deadline.
const requestTimeout = 15 * time.Second

// Client implements store.DocumentStore and store.HistoryStore against a
// relay Server.
type Client struct {
	base       *url.URL
	http       *http.Client
	dialer     *websocket.Dialer
	log        *slog.Logger
	retryDelay time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client used for reads and writes.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithRetryDelay sets how long a dropped watch waits before reconnecting.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = d }
}

// NewClient creates a client for the relay at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing relay url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:       u,
		http:       &http.Client{Timeout: requestTimeout},
		dialer:     websocket.DefaultDialer,
		log:        slog.Default(),
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) docURL(path string) string {
	return c.base.String() + "/api/docs/" + strings.TrimLeft(path, "/")
}

func (c *Client) historyURL(ids ...string) string {
	u := c.base.String() + "/api/history"
	for _, id := range ids {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (c *Client) watchURL(path string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/api/watch"
	u.RawQuery = url.Values{"path": {path}}.Encode()
	return u.String()
}

// Read implements store.DocumentStore.
func (c *Client) Read(ctx context.Context, path string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.docURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("building read request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, store.ErrNotFound
	default:
		return nil, fmt.Errorf("reading %s: %w", path, responseError(resp))
	}

	var body readResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if body.Data == nil {
		body.Data = map[string]any{}
	}
	return body.Data, nil
}

// Write implements store.DocumentStore.
func (c *Client) Write(ctx context.Context, path string, data map[string]any, opts store.WriteOptions) error {
	payload, err := json.Marshal(writeRequest{Data: data, Merge: opts.Merge})
	if err != nil {
		return fmt.Errorf("encoding write to %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.docURL(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("writing %s: %w", path, responseError(resp))
	}
	return nil
}

// Subscribe implements store.DocumentStore. The first connection is made
// before Subscribe returns; afterwards dropped connections are retried
// until the subscription ends.
func (c *Client) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (func(), error) {
	conn, _, err := c.dialer.DialContext(ctx, c.watchURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &remoteWatch{client: c, path: path, fn: fn, conn: conn}
	go w.run(ctx)

	var once gosync.Once
	return func() {
		once.Do(func() {
			cancel()
			w.closeConn()
		})
	}, nil
}

type remoteWatch struct {
	client *Client
	path   string
	fn     func(store.Snapshot)

	// lastVersion survives reconnects so a resent snapshot is not
	// delivered twice.
	lastVersion int64

	mu   gosync.Mutex
	conn *websocket.Conn
}

func (w *remoteWatch) closeConn() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
	}
}

func (w *remoteWatch) run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		w.closeConn()
	}()

	for {
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()

		w.read(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		conn = w.redial(ctx)
		if conn == nil {
			return
		}
		w.mu.Lock()
		w.conn = conn
		w.mu.Unlock()
		if ctx.Err() != nil {
			conn.Close()
			return
		}
	}
}

// read delivers snapshots until the connection fails.
func (w *remoteWatch) read(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.client.log.Warn("watch connection lost", "path", w.path, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			w.client.log.Warn("decoding watch message", "path", w.path, "error", err)
			continue
		}
		switch msg.Type {
		case MessageSnapshot:
			if msg.Snapshot == nil || (msg.Snapshot.Exists && msg.Snapshot.Version <= w.lastVersion) {
				continue
			}
			w.lastVersion = msg.Snapshot.Version
			if ctx.Err() != nil {
				return
			}
			w.fn(msg.Snapshot.snapshot())
		case MessageError:
			w.client.log.Warn("relay reported watch error", "path", w.path, "error", msg.Error)
		}
	}
}

func (w *remoteWatch) redial(ctx context.Context) *websocket.Conn {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.client.retryDelay):
		}
		conn, _, err := w.client.dialer.DialContext(ctx, w.client.watchURL(w.path), nil)
		if err == nil {
			return conn
		}
		w.client.log.Warn("reconnecting watch", "path", w.path, "error", err)
	}
}

// SaveHistorical implements store.HistoryStore.
func (c *Client) SaveHistorical(ctx context.Context, card model.HistoricalCard) error {
	if card.OwnerID == "" || card.BoardID == "" || card.ID == "" {
		return fmt.Errorf("saving historical card: owner, board and card id are required")
	}
	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("encoding historical card %s: %w", card.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.historyURL(card.OwnerID, card.BoardID, card.ID), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building history request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("saving historical card %s: %w", card.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("saving historical card %s: %w", card.ID, responseError(resp))
	}
	return nil
}

// DeleteHistorical implements store.HistoryStore.
func (c *Client) DeleteHistorical(ctx context.Context, ownerID, boardID, cardID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.historyURL(ownerID, boardID, cardID), nil)
	if err != nil {
		return fmt.Errorf("building history request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deleting historical card %s: %w", cardID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("deleting historical card %s: %w", cardID, responseError(resp))
	}
	return nil
}

// ListHistorical implements store.HistoryStore.
func (c *Client) ListHistorical(ctx context.Context, ownerID, boardID string) ([]model.HistoricalCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.historyURL(ownerID, boardID), nil)
	if err != nil {
		return nil, fmt.Errorf("building history request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing history of %s: %w", boardID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing history of %s: %w", boardID, responseError(resp))
	}
	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding history of %s: %w", boardID, err)
	}
	return body.Cards, nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("relay returned %d", resp.StatusCode)
}
