// Package quota talks to the server-enforced upload quota endpoint. The
// server is the sole authority; this client never increments locally.
package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// State mirrors the server's view of a user's quota. It is display
// state only and may be stale the moment it is returned.
type State struct {
	CurrentUsage     int `json:"currentUsage"`
	MaxFilesAllowed  int `json:"maxFilesAllowed"`
	MaxPagesAllowed  int `json:"maxPagesAllowed"`
	MaxSizeAllowedMB int `json:"maxSizeAllowedMB"`
}

// ErrQuotaExceeded reports that the server rejected the increment
// because the user is at their upload limit. Non-retryable.
var ErrQuotaExceeded = errors.New("upload quota exceeded")

// CheckError reports a transient failure talking to the quota endpoint.
// Retrying the check is safe; proceeding with the upload is not.
type CheckError struct {
	Err error
}

func (e *CheckError) Error() string { return fmt.Sprintf("quota check failed: %v", e.Err) }
func (e *CheckError) Unwrap() error { return e.Err }

// Gate is the client for the quota endpoint.
type Gate struct {
	endpoint string
	client   *http.Client
}

// NewGate returns a gate for the given quota API URL.
func NewGate(endpoint string) *Gate {
	return &Gate{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type request struct {
	Sub  string `json:"sub"`
	Mode string `json:"mode"`
}

type incrementResponse struct {
	NewCount int    `json:"newCount"`
	Message  string `json:"message"`
}

// Check returns the current quota state without mutating it. Used to
// populate limits before validation and to refresh the display after an
// accepted upload.
func (g *Gate) Check(ctx context.Context, sub, token string) (*State, error) {
	body, err := g.post(ctx, request{Sub: sub, Mode: "check"}, token)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, &CheckError{Err: fmt.Errorf("decoding quota state: %w", err)}
	}
	return &st, nil
}

// CheckAndIncrement atomically consumes one upload slot server-side.
// Callers must invoke this immediately before the object PUT and must
// not PUT when it fails. Failed uploads after an accepted increment are
// under-counted by design; that is the right bias for a usage cap.
func (g *Gate) CheckAndIncrement(ctx context.Context, sub, token string) (int, error) {
	body, err := g.post(ctx, request{Sub: sub, Mode: "increment"}, token)
	if err != nil {
		return 0, err
	}
	var resp incrementResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, &CheckError{Err: fmt.Errorf("decoding increment response: %w", err)}
	}
	log.Debug().Int("new_count", resp.NewCount).Msg("quota increment accepted")
	return resp.NewCount, nil
}

func (g *Gate) post(ctx context.Context, reqBody request, token string) ([]byte, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &CheckError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &CheckError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &CheckError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &CheckError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrQuotaExceeded
	default:
		return nil, &CheckError{Err: fmt.Errorf("quota endpoint returned status %d", resp.StatusCode)}
	}
}
