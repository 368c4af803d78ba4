// Package backend calls the trip-control operations the tracker depends on.
// The backend owns ride state; these calls only request transitions.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Machine-readable error ids returned by the backend.
const (
	ErrIDActiveRequests    = "RIDE_HAS_ACTIVE_REQUESTS"
	ErrIDTooFarFromDropoff = "DRIVER_TOO_FAR_FROM_DESTINATION"
	ErrIDTooFarFromPickup  = "DRIVER_TOO_FAR_FROM_PICKUP"
	ErrIDRideNotOngoing    = "RIDE_NOT_ONGOING"
	ErrIDRequestNotFound   = "REQUEST_NOT_FOUND"
)

type APIError struct {
	Status  int
	ID      string
	Message string
}

func (e *APIError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("backend %d %s: %s", e.Status, e.ID, e.Message)
	}
	return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
}

// ErrorID returns the backend error id carried by err, or "".
func ErrorID(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ID
	}
	return ""
}

// TripControl is the set of backend operations the state machine drives.
type TripControl interface {
	StartRide(ctx context.Context, rideID string) error
	StartRequest(ctx context.Context, requestID string) error
	CompleteRequest(ctx context.Context, requestID string) error
	CompleteRide(ctx context.Context, rideID string) error
	CancelRequest(ctx context.Context, requestID string) error
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) StartRide(ctx context.Context, rideID string) error {
	return c.post(ctx, "rides", rideID, "start")
}

func (c *Client) StartRequest(ctx context.Context, requestID string) error {
	return c.post(ctx, "requests", requestID, "start")
}

func (c *Client) CompleteRequest(ctx context.Context, requestID string) error {
	return c.post(ctx, "requests", requestID, "complete")
}

func (c *Client) CompleteRide(ctx context.Context, rideID string) error {
	return c.post(ctx, "rides", rideID, "complete")
}

func (c *Client) CancelRequest(ctx context.Context, requestID string) error {
	return c.post(ctx, "requests", requestID, "cancel")
}

type errorBody struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Error   *struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, kind, id, action string) error {
	if id == "" {
		return fmt.Errorf("%s %s: empty id", kind, action)
	}
	u := fmt.Sprintf("%s/%s/%s/%s", c.baseURL, kind, url.PathEscape(id), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s %s: %w", kind, action, id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		apiErr.ID, apiErr.Message = body.ID, body.Message
		if body.Error != nil {
			apiErr.ID, apiErr.Message = body.Error.ID, body.Error.Message
		}
	}
	return apiErr
}
