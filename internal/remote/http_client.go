package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/errkind"
	"github.com/sirupsen/logrus"
)

// TokenProvider resolves the bearer token used to authenticate against the
// remote spreadsheet API, mirroring the teacher's NotionAccessTokenProvider.
type TokenProvider func(ctx context.Context) (string, error)

// HTTPClientOptions configures NewHTTPClient. Zero values fall back to the
// spec's defaults.
type HTTPClientOptions struct {
	BaseURL              string
	Range                string // e.g. "Sheet1!A1:H20"
	TokenProvider        TokenProvider
	HTTPClient           *http.Client
	Logger               *logrus.Logger
	InitialBackoff       time.Duration // default 5s
	MaxBackoff           time.Duration // default 60s
	RequestTimeout       time.Duration // default 10s
	OnStateChange        StateListener
}

// HTTPClient talks to the remote spreadsheet API over HTTP. It owns its
// backoff/offline state behind a mutex; callers never see the underlying
// map/bool directly.
type HTTPClient struct {
	baseURL       string
	rangeName     string
	tokenProvider TokenProvider
	httpClient    *http.Client
	logger        *logrus.Logger
	onStateChange StateListener

	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu             sync.Mutex
	currentBackoff time.Duration
	backoffUntil   time.Time
	offline        bool
	inBackoffLog   bool
}

// NewHTTPClient returns an HTTPClient configured from opts.
func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = 5 * time.Second
	}
	max := opts.MaxBackoff
	if max <= 0 {
		max = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HTTPClient{
		baseURL:        baseURL,
		rangeName:      opts.Range,
		tokenProvider:  opts.TokenProvider,
		httpClient:     httpClient,
		logger:         logger,
		onStateChange:  opts.OnStateChange,
		initialBackoff: initial,
		maxBackoff:     max,
		currentBackoff: initial,
	}
}

// ReadRange fetches the configured range and flattens it into a Snapshot.
func (c *HTTPClient) ReadRange(ctx context.Context) (cell.Snapshot, Result, error) {
	if blocked, until := c.backoffActive(); blocked {
		_ = until
		return nil, ResultRateLimited, nil
	}
	values, err := c.getValues(ctx)
	if err != nil {
		if kind, ok := errkind.ClassifyConnectivity(err, errkind.OfflineRemote); ok {
			c.setOffline(true)
			return nil, ResultUnreachable, errkind.New(kind, err)
		}
		if rl, ok := err.(*rateLimitedError); ok {
			_ = rl
			c.enterBackoff()
			return nil, ResultRateLimited, nil
		}
		return nil, ResultUnreachable, err
	}
	c.onSuccess()
	return flatten(values), ResultOK, nil
}

// WriteBatch pushes writes to the remote in one batched call.
func (c *HTTPClient) WriteBatch(ctx context.Context, writes []Write) (Result, error) {
	if blocked, _ := c.backoffActive(); blocked {
		return ResultRateLimited, nil
	}
	if len(writes) == 0 {
		return ResultOK, nil
	}
	err := c.postBatch(ctx, writes)
	return c.classifyWriteErr(err)
}

// WriteSingle is a convenience wrapper for queue replay.
func (c *HTTPClient) WriteSingle(ctx context.Context, address cell.Address, value cell.Value) (Result, error) {
	return c.WriteBatch(ctx, []Write{{Address: address, Value: value}})
}

// IsOffline reports the last-observed connectivity state.
func (c *HTTPClient) IsOffline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

func (c *HTTPClient) classifyWriteErr(err error) (Result, error) {
	if err == nil {
		c.onSuccess()
		return ResultOK, nil
	}
	if kind, ok := errkind.ClassifyConnectivity(err, errkind.OfflineRemote); ok {
		c.setOffline(true)
		return ResultUnreachable, errkind.New(kind, err)
	}
	if _, ok := err.(*rateLimitedError); ok {
		c.enterBackoff()
		return ResultRateLimited, nil
	}
	return ResultUnreachable, err
}

func (c *HTTPClient) backoffActive() (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backoffUntil.IsZero() {
		return false, time.Time{}
	}
	if time.Now().Before(c.backoffUntil) {
		return true, c.backoffUntil
	}
	return false, time.Time{}
}

// enterBackoff doubles currentBackoff (capped at maxBackoff) and logs exactly
// once on entry (spec §4.3: "one log on entering backoff, one on exit, none
// in between").
func (c *HTTPClient) enterBackoff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentBackoff *= 2
	if c.currentBackoff > c.maxBackoff {
		c.currentBackoff = c.maxBackoff
	}
	c.backoffUntil = time.Now().Add(c.currentBackoff)
	if !c.inBackoffLog {
		c.inBackoffLog = true
		c.logger.WithField("component", "remote-client").WithField("backoff", c.currentBackoff).Warn("entering rate-limit backoff")
	}
}

// onSuccess resets the backoff state and logs an exit event exactly once if
// a backoff episode was in progress, and flips offline state back to false.
func (c *HTTPClient) onSuccess() {
	c.mu.Lock()
	wasBackoff := c.inBackoffLog
	c.currentBackoff = c.initialBackoff
	c.backoffUntil = time.Time{}
	c.inBackoffLog = false
	c.mu.Unlock()
	if wasBackoff {
		c.logger.WithField("component", "remote-client").Info("exiting rate-limit backoff")
	}
	c.setOffline(false)
}

func (c *HTTPClient) setOffline(offline bool) {
	c.mu.Lock()
	changed := c.offline != offline
	c.offline = offline
	c.mu.Unlock()
	if changed {
		c.logger.WithField("component", "remote-client").WithField("offline", offline).Warn("remote connectivity state changed")
		if c.onStateChange != nil {
			c.onStateChange(offline)
		}
	}
}

type rateLimitedError struct{ retryAfter time.Duration }

func (e *rateLimitedError) Error() string { return "remote: rate limited" }

func (c *HTTPClient) getValues(ctx context.Context) ([][]any, error) {
	if c.tokenProvider == nil {
		return nil, fmt.Errorf("remote: token provider is required")
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v4/ranges/%s/values", c.baseURL, c.rangeName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	req.Header.Set("X-Correlation-Id", fmt.Sprintf("read_%d", time.Now().UnixNano()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &rateLimitedError{}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote: read failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	var payload struct {
		Values [][]any `json:"values"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload.Values, nil
}

func (c *HTTPClient) postBatch(ctx context.Context, writes []Write) error {
	if c.tokenProvider == nil {
		return fmt.Errorf("remote: token provider is required")
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return err
	}
	type rangeValue struct {
		Range string `json:"range"`
		Value string `json:"value"`
	}
	payload := make([]rangeValue, 0, len(writes))
	for _, w := range writes {
		payload = append(payload, rangeValue{
			Range: fmt.Sprintf("Sheet1!%s%d", w.Address.ColumnLetter(), w.Address.Row()),
			Value: string(w.Value),
		})
	}
	bodyBytes, err := json.Marshal(map[string]any{"data": payload})
	if err != nil {
		return err
	}
	url := c.baseURL + "/v4/values:batchUpdate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-Id", fmt.Sprintf("write_%d", time.Now().UnixNano()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitedError{}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remote: write failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

// flatten maps a dense row-major 2-D values array into a Snapshot, resolving
// the malformed-row coercion decision in DESIGN.md: non-string values are
// stringified, nil (merged-cell) values are treated as absent, and trailing
// absent cells in a row are not added to the Snapshot.
func flatten(values [][]any) cell.Snapshot {
	snap := cell.Snapshot{}
	for rowIdx, row := range values {
		for colIdx, raw := range row {
			if raw == nil {
				continue
			}
			s := stringify(raw)
			if s == "" {
				continue
			}
			letter := cell.ColumnLetter(colIdx + 1)
			if letter == "" {
				continue
			}
			addr, err := cell.NewAddress(rowIdx+1, letter)
			if err != nil {
				continue
			}
			snap[addr] = cell.Value(s)
		}
	}
	return snap
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
