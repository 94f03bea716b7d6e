package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ismaiel54/paper-trading-engine/internal/broker"
	"github.com/ismaiel54/paper-trading-engine/internal/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestChecker(t *testing.T) (*HealthChecker, *broker.SimulatedBroker, *guard.Guard) {
	t.Helper()
	sim := broker.NewSimulatedBroker(broker.SimConfig{StartingBalance: 1000}, broker.ConnConfig{}, nil, zap.NewNop())
	g, err := guard.New(guard.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	return NewHealthChecker(sim, g, zap.NewNop()), sim, g
}

func TestHealthz_RequiresReadyConnectedAndNoHalt(t *testing.T) {
	h, sim, g := newTestChecker(t)

	get := func() int {
		rec := httptest.NewRecorder()
		h.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, get(), "not ready yet")

	h.SetReady(true)
	assert.Equal(t, http.StatusServiceUnavailable, get(), "broker still disconnected")

	require.NoError(t, sim.Connect(context.Background()))
	assert.Equal(t, http.StatusOK, get())

	g.ForceHalt("manual", "")
	assert.Equal(t, http.StatusServiceUnavailable, get(), "a global halt marks the process unhealthy")

	g.ResumeTrading("")
	assert.Equal(t, http.StatusOK, get())
}

func TestStatus_ReturnsBrokerAndGuardState(t *testing.T) {
	h, sim, g := newTestChecker(t)
	require.NoError(t, sim.Connect(context.Background()))
	h.SetReady(true)
	g.ForceHalt("manual", "TSLA")

	rec := httptest.NewRecorder()
	h.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Healthy bool                `json:"healthy"`
		Broker  broker.HealthStatus `json:"broker"`
		Guard   guard.Status        `json:"guard"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Healthy, "a symbol halt alone does not fail health")
	assert.Equal(t, "CONNECTED", body.Broker.State)
	assert.Equal(t, []string{"TSLA"}, body.Guard.HaltedSymbols)
}
