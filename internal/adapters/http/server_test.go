package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	concierge "github.com/concierge-sh/concierge"
	httpadapter "github.com/concierge-sh/concierge/internal/adapters/http"
	"github.com/concierge-sh/concierge/pkg/domain"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	search := &domain.Operation{
		Name:        "search",
		Description: "Search the market for a stock symbol.",
		Args:        []domain.ArgSpec{{Name: "symbol", Type: "string", Required: true}},
		Handler: func(ctx context.Context, state *domain.State, args map[string]any) (any, error) {
			symbol, _ := args["symbol"].(string)
			if symbol == "" {
				return nil, errors.New("symbol is required")
			}
			state.Set("last_search", symbol)
			return map[string]any{"symbol": symbol}, nil
		},
	}

	browse := domain.NewStage("browse", "Browse the market.")
	browse.Transitions = []string{"portfolio"}
	browse.AddOperation(search)
	portfolio := domain.NewStage("portfolio", "Review holdings.")

	wf := domain.NewWorkflow("stock_exchange", "Simple stock trading workflow.")
	require.NoError(t, wf.AddStage(browse, false))
	require.NoError(t, wf.AddStage(portfolio, false))

	eng, err := concierge.New(wf)
	require.NoError(t, err)

	srv := httptest.NewServer(httpadapter.NewHandler(eng))
	t.Cleanup(srv.Close)
	return srv
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.SessionID)
	assert.Contains(t, body.Message, "Current stage: browse")
	return body.SessionID
}

func TestServer_SessionRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createSession(t, srv)

	resp, err := http.Post(
		srv.URL+"/sessions/"+sessionID+"/actions",
		"application/json",
		bytes.NewBufferString(`{"action": "operation_call", "tool": "search", "args": {"symbol": "AAPL"}}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	message, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(message), `Operation "search" executed successfully.`)

	infoResp, err := http.Get(srv.URL + "/sessions/" + sessionID)
	require.NoError(t, err)
	defer infoResp.Body.Close()
	require.Equal(t, http.StatusOK, infoResp.StatusCode)

	var info domain.SessionInfo
	require.NoError(t, json.NewDecoder(infoResp.Body).Decode(&info))
	assert.Equal(t, "browse", info.CurrentStage)
	assert.Equal(t, 1, info.HistoryLength)
}

func TestServer_EndSession(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createSession(t, srv)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/"+sessionID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "terminated", body["status"])
	assert.Equal(t, sessionID, body["session_id"])
}

func TestServer_UnknownSessionIs404(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(
		srv.URL+"/sessions/nope/actions",
		"application/json",
		bytes.NewBufferString(`{"action": "handshake"}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ListSessions(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createSession(t, srv)

	resp, err := http.Get(srv.URL + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sessions []string `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Sessions, sessionID)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	createSession(t, srv)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	require.Equal(t, http.StatusOK, metricsResp.StatusCode)

	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "concierge_http_requests_total")
	assert.Contains(t, string(body), "concierge_sessions_active")
}
