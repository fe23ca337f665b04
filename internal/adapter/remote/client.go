// Package remote is the HTTP client for the planner service: the point
// registry, the path solver and the transfer service behind one base URL.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aleskucera/robot-mission-planner/internal/adapter/metrics"
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/aleskucera/robot-mission-planner/internal/platform/correlation"
	apperrors "github.com/aleskucera/robot-mission-planner/internal/platform/errors"
	"github.com/aleskucera/robot-mission-planner/internal/platform/version"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

const (
	httpMaxIdleConns    = 10
	httpIdleConnTimeout = 30 * time.Second
	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4 << 20
)

const (
	callAddPoint       = "add_point"
	callClearPoints    = "clear_points"
	callSolvePath      = "solve_path"
	callCreateTransfer = "create_transfer"
	callCancelTransfer = "cancel_transfer"
)

// Client talks JSON over HTTP POST to the planner service. Every call goes
// through a circuit breaker; an open breaker fails fast with a transport error.
// Callers bound each call with their context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         circuitbreaker.CircuitBreaker[any]
	metrics    *metrics.RemoteMetrics
}

var (
	_ domain.PointRegistry   = (*Client)(nil)
	_ domain.PathSolver      = (*Client)(nil)
	_ domain.TransferService = (*Client)(nil)
)

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, m *metrics.RemoteMetrics) *Client {
	transport := &http.Transport{
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "planner_service",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.CircuitStateChanges.WithLabelValues(e.NewState.String()).Inc()
			m.CircuitBreakerState.Set(stateToFloat(e.NewState))
		}).
		Build()

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: transport},
		cb:         cb,
		metrics:    m,
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// envelope is the common response shape. Calls that answer with a bare 2xx
// decode to the zero value, which is treated as success.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e envelope) rejected() bool {
	return e.Success != nil && !*e.Success
}

type addPointRequest struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Type string  `json:"type"`
}

type addPointResponse struct {
	envelope
	PointID     int `json:"point_id"`
	TotalPoints int `json:"total_points"`
}

type pathPoint struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Type string  `json:"type,omitempty"`
	ID   *int    `json:"id,omitempty"`
}

type solvePathResponse struct {
	envelope
	Path []pathPoint `json:"path"`
}

type createTransferRequest struct {
	Payload string `json:"payload"`
}

type createTransferResponse struct {
	envelope
	Code       string `json:"code"`
	TransferID string `json:"transfer_id"`
}

type cancelTransferRequest struct {
	TransferID string `json:"transfer_id"`
}

func (c *Client) AddPoint(ctx context.Context, w domain.Waypoint) error {
	var resp addPointResponse
	req := addPointRequest{Lat: w.Position.Lat, Lng: w.Position.Lng, Type: string(w.Kind)}
	if err := c.post(ctx, callAddPoint, req, &resp); err != nil {
		return err
	}
	if resp.rejected() {
		return apperrors.RejectionError(resp.Message, resp.Details)
	}
	slog.DebugContext(ctx, "Point registered", "waypoint_id", w.ID, "point_id", resp.PointID, "total_points", resp.TotalPoints)
	return nil
}

func (c *Client) ClearPoints(ctx context.Context) error {
	var resp envelope
	if err := c.post(ctx, callClearPoints, nil, &resp); err != nil {
		return err
	}
	if resp.rejected() {
		return apperrors.RejectionError(resp.Message, resp.Details)
	}
	return nil
}

// SolvePath returns the solved path. success: false and an empty path are
// both rejections carrying the server message.
func (c *Client) SolvePath(ctx context.Context) (*domain.PathResult, error) {
	var resp solvePathResponse
	if err := c.post(ctx, callSolvePath, nil, &resp); err != nil {
		return nil, err
	}
	if resp.rejected() || len(resp.Path) == 0 {
		return nil, apperrors.RejectionError(resp.Message, resp.Details)
	}

	path := &domain.PathResult{
		Points:  make([]domain.Position, len(resp.Path)),
		Summary: resp.Message,
	}
	for i, p := range resp.Path {
		path.Points[i] = domain.Position{Lat: p.Lat, Lng: p.Lng}
	}
	return path, nil
}

func (c *Client) CreateTransfer(ctx context.Context, payload []byte) (*domain.CreatedTransfer, error) {
	var resp createTransferResponse
	if err := c.post(ctx, callCreateTransfer, createTransferRequest{Payload: string(payload)}, &resp); err != nil {
		return nil, err
	}
	if resp.rejected() || resp.Code == "" {
		return nil, apperrors.RejectionError(resp.Message, resp.Details)
	}
	return &domain.CreatedTransfer{TransferID: resp.TransferID, Code: resp.Code}, nil
}

func (c *Client) CancelTransfer(ctx context.Context, transferID string) error {
	var resp envelope
	if err := c.post(ctx, callCancelTransfer, cancelTransferRequest{TransferID: transferID}, &resp); err != nil {
		return err
	}
	if resp.rejected() {
		return apperrors.RejectionError(resp.Message, resp.Details).WithContext("transfer_id", transferID)
	}
	return nil
}

// post sends body as JSON to /call and decodes a 2xx response into out.
// Network failures, non-2xx statuses and undecodable bodies are transport
// errors. Rejections are decided by the caller from the decoded envelope.
func (c *Client) post(ctx context.Context, call string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RequestDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
		c.metrics.RequestsTotal.WithLabelValues(call, outcome(err)).Inc()
	}()

	if !c.cb.TryAcquirePermit() {
		return apperrors.TransportError(call+" failed", circuitbreaker.ErrOpen)
	}

	err = c.do(ctx, call, body, out)
	var structured *apperrors.Error
	if errors.As(err, &structured) && structured.Type == apperrors.TypeTransport {
		c.cb.RecordError(err)
	} else {
		c.cb.RecordSuccess()
	}
	return err
}

func (c *Client) do(ctx context.Context, call string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.InternalError("marshal "+call+" request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+call, reader)
	if err != nil {
		return apperrors.InternalError("create "+call+" request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if id, ok := correlation.ID(ctx); ok {
		req.Header.Set(correlation.Header, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.TransportError(call+" failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.TransportError(call+" failed", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.TransportError(call+" failed", fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 200))).
			WithContext("status", resp.StatusCode)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.TransportError(call+" failed", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperrors.TypeOf(err))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
