// Package cliclient is the HTTP client cellsync-cli drives: thin wrappers
// around the control surface internal/httpapi exposes. Grounded on
// relayfile's own httpapi route shapes (the server this client talks to was
// itself restyled from relayfile's internal/httpapi/server.go), so the
// client and server sides of this boundary share the same JSON envelope
// conventions.
package cliclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a running reconciler's HTTP control surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client targeting addr (e.g. "http://127.0.0.1:8080").
func New(addr string) *Client {
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// PrintStatus fetches GET /status and prints it as indented JSON.
func (c *Client) PrintStatus(ctx context.Context) error {
	return c.getAndPrint(ctx, "/status")
}

// PrintCachedSnapshot fetches GET /cached-snapshot and prints it.
func (c *Client) PrintCachedSnapshot(ctx context.Context) error {
	return c.getAndPrint(ctx, "/cached-snapshot")
}

// ForceSync calls POST /force-sync.
func (c *Client) ForceSync(ctx context.Context) error {
	_, err := c.post(ctx, "/force-sync", nil)
	return err
}

type editRequest struct {
	JobID       string `json:"jobId"`
	Row         int    `json:"row"`
	Col         string `json:"col"`
	Value       string `json:"value"`
	SheetID     string `json:"sheetId"`
	SubmittedAt int64  `json:"submittedAt"`
}

// SubmitEdit calls POST /edit with a single envelope built from its
// arguments, matching the schema internal/jobqueue validates against.
func (c *Client) SubmitEdit(ctx context.Context, jobID string, row int, col, sheetID, value string) error {
	body, err := json.Marshal(editRequest{
		JobID:       jobID,
		Row:         row,
		Col:         col,
		Value:       value,
		SheetID:     sheetID,
		SubmittedAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	_, err = c.post(ctx, "/edit", body)
	return err
}

func (c *Client) getAndPrint(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s (%d)", path, string(body), resp.StatusCode)
	}
	return printIndented(body)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: %s (%d)", path, string(respBody), resp.StatusCode)
	}
	return respBody, printIndented(respBody)
}

func printIndented(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
