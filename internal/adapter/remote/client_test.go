package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aleskucera/robot-mission-planner/internal/adapter/metrics"
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/aleskucera/robot-mission-planner/internal/platform/correlation"
	apperrors "github.com/aleskucera/robot-mission-planner/internal/platform/errors"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.RemoteMetrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	m := metrics.NewRemoteMetrics(prometheus.NewRegistry())
	return NewClient(srv.URL+"/", m), m
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestAddPoint(t *testing.T) {
	var got addPointRequest
	var header, userAgent string
	client, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/add_point", r.URL.Path)
		header = r.Header.Get(correlation.Header)
		userAgent = r.UserAgent()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, map[string]any{"success": true, "point_id": 0, "total_points": 1})
	})

	ctx := correlation.WithID(context.Background(), "abc12345")
	err := client.AddPoint(ctx, domain.Waypoint{
		ID:       uuid.New(),
		Position: domain.Position{Lat: 50.0, Lng: 14.0},
		Kind:     domain.KindStart,
	})
	require.NoError(t, err)

	assert.Equal(t, addPointRequest{Lat: 50.0, Lng: 14.0, Type: "start"}, got)
	assert.Equal(t, "abc12345", header)
	assert.True(t, strings.HasPrefix(userAgent, "mission-planner/"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(callAddPoint, "success")))
}

func TestClearPoints_BareSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/clear_points", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, client.ClearPoints(context.Background()))
}

func TestSolvePath(t *testing.T) {
	tests := []struct {
		name        string
		response    map[string]any
		wantPoints  []domain.Position
		wantSummary string
		wantMessage string
	}{
		{
			name: "success",
			response: map[string]any{
				"success": true,
				"message": "Total distance: 13245 meters",
				"path": []map[string]any{
					{"lat": 50.0, "lng": 14.0, "type": "start", "id": 0},
					{"lat": 50.05, "lng": 14.05, "type": "intermediate", "id": 2},
					{"lat": 50.1, "lng": 14.1, "type": "goal", "id": 1},
				},
			},
			wantPoints: []domain.Position{
				{Lat: 50.0, Lng: 14.0},
				{Lat: 50.05, Lng: 14.05},
				{Lat: 50.1, Lng: 14.1},
			},
			wantSummary: "Total distance: 13245 meters",
		},
		{
			name:        "rejected",
			response:    map[string]any{"success": false, "message": "No solution found"},
			wantMessage: "No solution found",
		},
		{
			name:        "empty path",
			response:    map[string]any{"success": true, "path": []any{}},
			wantMessage: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/solve_path", r.URL.Path)
				writeJSON(t, w, tt.response)
			})

			path, err := client.SolvePath(context.Background())
			if tt.wantPoints == nil {
				require.Error(t, err)
				assert.Nil(t, path)
				assert.Equal(t, apperrors.TypeRejection, apperrors.TypeOf(err))
				assert.Equal(t, tt.wantMessage, apperrors.AsStructuredError(err).Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPoints, path.Points)
			assert.Equal(t, tt.wantSummary, path.Summary)
		})
	}
}

func TestCreateTransfer(t *testing.T) {
	var got createTransferRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/create_transfer", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, map[string]any{"success": true, "code": "7-crossover-batman", "transfer_id": "abc"})
	})

	created, err := client.CreateTransfer(context.Background(), []byte("<gpx/>"))
	require.NoError(t, err)

	assert.Equal(t, "<gpx/>", got.Payload)
	assert.Equal(t, &domain.CreatedTransfer{TransferID: "abc", Code: "7-crossover-batman"}, created)
}

func TestCreateTransfer_RejectionCarriesDetails(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"success": false,
			"message": "Failed to start transfer",
			"details": "wormhole: command not found",
		})
	})

	_, err := client.CreateTransfer(context.Background(), []byte("<gpx/>"))
	require.Error(t, err)

	assert.Equal(t, apperrors.TypeRejection, apperrors.TypeOf(err))
	assert.Equal(t, "Failed to start transfer", apperrors.UserMessage(err, "fallback"))
	assert.Equal(t, "wormhole: command not found", apperrors.DetailsOf(err))
}

func TestCancelTransfer(t *testing.T) {
	var got cancelTransferRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cancel_transfer", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, map[string]any{"success": true})
	})

	require.NoError(t, client.CancelTransfer(context.Background(), "abc"))
	assert.Equal(t, "abc", got.TransferID)
}

func TestTransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, m := newTestClient(t, tt.handler)

			_, err := client.SolvePath(context.Background())
			require.Error(t, err)
			assert.Equal(t, apperrors.TypeTransport, apperrors.TypeOf(err))
			assert.Equal(t, "generic", apperrors.UserMessage(err, "generic"))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(callSolvePath, "transport")))
		})
	}
}

func TestTransportError_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, metrics.NewRemoteMetrics(prometheus.NewRegistry()))
	err := client.ClearPoints(context.Background())

	require.Error(t, err)
	assert.Equal(t, apperrors.TypeTransport, apperrors.TypeOf(err))
}

func TestCircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	client, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for range 5 {
		require.Error(t, client.ClearPoints(context.Background()))
	}
	require.Equal(t, int32(5), hits.Load())

	err := client.ClearPoints(context.Background())
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, apperrors.TypeTransport, apperrors.TypeOf(err))
	assert.Equal(t, int32(5), hits.Load(), "open breaker must not reach the server")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState))
}

func TestRejectionsDoNotTripBreaker(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"success": false, "message": "Need both start and goal points"})
	})

	for range 10 {
		_, err := client.SolvePath(context.Background())
		require.Equal(t, apperrors.TypeRejection, apperrors.TypeOf(err))
	}
}
