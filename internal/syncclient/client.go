package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/attendancex/attendx/internal/models"
)

// Sentinel errors for common failure classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrTimeout      = errors.New("request timed out")
)

const (
	syncPath           = "/api/attendance/sync"
	checkDuplicatePath = "/api/attendance/check-duplicate"
	healthPath         = "/healthz"
)

// Client is an HTTP client for the attendance backend.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new sync client. The HTTP client carries a coarse safety
// timeout; callers bound individual requests with their context.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 60 * time.Second},
	}
}

// SyncRequest is the body for POST /api/attendance/sync.
type SyncRequest struct {
	EventID    string             `json:"eventId"`
	UserID     string             `json:"userId"`
	Method     models.Method      `json:"method"`
	Timestamp  time.Time          `json:"timestamp"`
	QRCodeData string             `json:"qrCodeData,omitempty"`
	Location   *models.Location   `json:"location,omitempty"`
	DeviceInfo *models.DeviceInfo `json:"deviceInfo,omitempty"`
}

// NewSyncRequest builds the wire payload for a record
func NewSyncRequest(r *models.AttendanceRecord) *SyncRequest {
	return &SyncRequest{
		EventID:    r.EventID,
		UserID:     r.UserID,
		Method:     r.Method,
		Timestamp:  r.Timestamp,
		QRCodeData: r.QRCodeData,
		Location:   r.Location,
		DeviceInfo: r.DeviceInfo,
	}
}

// SyncResponse is the 2xx response of a sync request. The server
// confirmation is informational only.
type SyncResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// DuplicateRequest is the body for POST /api/attendance/check-duplicate.
type DuplicateRequest struct {
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// DuplicateResponse reports whether the server already holds a matching check-in.
type DuplicateResponse struct {
	Exists bool          `json:"exists"`
	Record *RemoteRecord `json:"record,omitempty"`
}

// RemoteRecord is the server's view of an existing check-in. Raw keeps the
// full JSON object so conflicts can be shown to a human unchanged.
type RemoteRecord struct {
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Method    string          `json:"method,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps a copy of the raw object alongside the decoded fields.
func (r *RemoteRecord) UnmarshalJSON(data []byte) error {
	type plain RemoteRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RemoteRecord(p)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// Sync submits one attendance record.
func (c *Client) Sync(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	var resp SyncResponse
	if err := c.do(ctx, http.MethodPost, syncPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckDuplicate asks whether the server already has a check-in for the same event and user.
func (c *Client) CheckDuplicate(ctx context.Context, req *DuplicateRequest) (*DuplicateResponse, error) {
	var resp DuplicateResponse
	if err := c.do(ctx, http.MethodPost, checkDuplicatePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, healthPath, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- HTTP helpers ---

// APIError is a non-2xx response. Message holds the server's "error" string
// when the body carried one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// errorBody is the JSON error body from the server.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: reading %s", ErrTimeout, path)
		}
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil {
			apiErr.Message = eb.Error
			if apiErr.Message == "" {
				apiErr.Message = eb.Message
			}
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
