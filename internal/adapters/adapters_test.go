package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonalabs/lona/internal/model"
)

func adapterCode(t *testing.T, err error) string {
	t.Helper()
	var ae *AdapterError
	require.ErrorAs(t, err, &ae)
	return ae.Code
}

func TestHTTPLiveEngine_MalformedJSONIsBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	engine := NewHTTPLiveEngine(srv.URL, time.Second)
	_, err := engine.GetDeployment(context.Background(), "engine-deployment-1")
	assert.Equal(t, model.ErrCodeLiveEngineBadResponse, adapterCode(t, err))
}

func TestHTTPLiveEngine_TransportFailureIsUnavailable(t *testing.T) {
	engine := NewHTTPLiveEngine("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := engine.GetDeployment(context.Background(), "engine-deployment-1")
	assert.Equal(t, model.ErrCodeLiveEngineUnavailable, adapterCode(t, err))
}

func TestHTTPLiveEngine_Non2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := NewHTTPLiveEngine(srv.URL, time.Second)
	_, err := engine.PlaceOrder(context.Background(), OrderSpec{Symbol: "BTCUSDT", Side: model.SideBuy, Quantity: 1})
	assert.Equal(t, model.ErrCodeLiveEngineUnavailable, adapterCode(t, err))
}

func TestHTTPLiveEngine_DecodesDeployment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/deployments/engine-deployment-7", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"engine-deployment-7","status":"active","latest_pnl":42.5}`))
	}))
	defer srv.Close()

	engine := NewHTTPLiveEngine(srv.URL, time.Second)
	state, err := engine.GetDeployment(context.Background(), "engine-deployment-7")
	require.NoError(t, err)
	assert.Equal(t, "active", state.Status)
	require.NotNil(t, state.LatestPnl)
	assert.Equal(t, 42.5, *state.LatestPnl)
}

func TestHTTPTrader_MalformedJSONIsBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[[["))
	}))
	defer srv.Close()

	trader := NewHTTPTrader(srv.URL, time.Second)
	_, err := trader.GetBacktest(context.Background(), "trader-report-1")
	assert.Equal(t, model.ErrCodeTraderBadResponse, adapterCode(t, err))
}

func TestHTTPTrader_CreateBacktestRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"id":"trader-report-9","status":"completed","metrics":{"sharpe_ratio":1.1}}`))
	}))
	defer srv.Close()

	trader := NewHTTPTrader(srv.URL, time.Second)
	report, err := trader.CreateBacktest(context.Background(), BacktestSpec{StrategyRefID: "ref", InitialCash: 1000})
	require.NoError(t, err)
	assert.Equal(t, "trader-report-9", report.ReportID)
	assert.Equal(t, "completed", report.Status)
	assert.Equal(t, 1.1, report.Metrics["sharpe_ratio"])
}

func TestHTTPDataBridge_PublishFailureCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	bridge := NewHTTPDataBridge(srv.URL, time.Second)
	err := bridge.PublishDataset(context.Background(), "lona-symbol-dataset-000001", "btc.csv")
	assert.Equal(t, model.ErrCodeDatasetPublishFailed, adapterCode(t, err))
}

func TestHTTPDataBridge_MarketContextFillsDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"last_price":64000}`))
	}))
	defer srv.Close()

	bridge := NewHTTPDataBridge(srv.URL, time.Second)
	mc, err := bridge.MarketContext(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", mc.Symbol)
	assert.Equal(t, float64(64000), mc.LastPrice)
	assert.False(t, mc.AsOf.IsZero())
}

func TestFakeLiveEngine_FailureInjection(t *testing.T) {
	engine := NewFakeLiveEngine()
	boom := errors.New("engine down")
	engine.FailWith = boom

	_, err := engine.CreateDeployment(context.Background(), DeploymentSpec{})
	assert.ErrorIs(t, err, boom)

	engine.FailWith = nil
	dep, err := engine.CreateDeployment(context.Background(), DeploymentSpec{Capital: 100})
	require.NoError(t, err)
	assert.Equal(t, "active", dep.Status)

	stopped, err := engine.StopDeployment(context.Background(), dep.RefID)
	require.NoError(t, err)
	assert.Equal(t, "terminated", stopped.Status)
	assert.Equal(t, 1, engine.StopCalls)
}
