package dataset

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonalabs/lona/internal/adapters"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

var rctx = model.RequestContext{TenantID: "tenant-001", UserID: "user-001", RequestID: "req-1"}

func newService(t *testing.T) (*Service, *store.Store, *adapters.FakeDataBridge) {
	t.Helper()
	st := store.New(nil, time.Minute)
	bridge := adapters.NewFakeDataBridge()
	return NewService(st, bridge, nil), st, bridge
}

func TestEnsurePublished_AllocatesStableProviderID(t *testing.T) {
	svc, _, bridge := newService(t)
	ds := svc.Register(rctx, model.RegisterDatasetRequest{Filename: "btc_1m.csv", SizeBytes: 1024})

	published, err := svc.EnsurePublished(context.Background(), rctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DatasetPublished, published.Status)
	assert.Equal(t, "lona-symbol-"+ds.ID, published.ProviderDataID)
	assert.Equal(t, "btc_1m.csv", bridge.Published[published.ProviderDataID])

	// Re-publishing reuses the mapping without another provider call.
	bridge.PublishFail = errors.New("provider down")
	again, err := svc.EnsurePublished(context.Background(), rctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, published.ProviderDataID, again.ProviderDataID)
}

func TestEnsurePublished_UnknownDataset(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.EnsurePublished(context.Background(), rctx, "dataset-999999")
	var pe *model.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.ErrCodeDatasetNotFound, pe.Code)
	assert.Equal(t, http.StatusNotFound, pe.Status)
}

func TestEnsurePublished_AdapterFailureMarksDataset(t *testing.T) {
	svc, st, bridge := newService(t)
	ds := svc.Register(rctx, model.RegisterDatasetRequest{Filename: "eth_1m.csv"})
	bridge.PublishFail = errors.New("provider down")

	_, err := svc.EnsurePublished(context.Background(), rctx, ds.ID)
	var pe *model.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.ErrCodeDatasetPublishFailed, pe.Code)
	assert.Equal(t, http.StatusBadGateway, pe.Status)

	stored, getErr := st.GetDataset(rctx, ds.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.DatasetPublishFailed, stored.Status)

	// A later retry after the provider recovers succeeds.
	bridge.PublishFail = nil
	published, err := svc.EnsurePublished(context.Background(), rctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DatasetPublished, published.Status)
}

func TestResolveRefs(t *testing.T) {
	svc, _, _ := newService(t)
	first := svc.Register(rctx, model.RegisterDatasetRequest{Filename: "a.csv"})
	second := svc.Register(rctx, model.RegisterDatasetRequest{Filename: "b.csv"})

	_, err := svc.EnsurePublished(context.Background(), rctx, first.ID)
	require.NoError(t, err)
	_, err = svc.EnsurePublished(context.Background(), rctx, second.ID)
	require.NoError(t, err)

	ids, err := svc.ResolveRefs(rctx, []string{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"lona-symbol-" + first.ID, "lona-symbol-" + second.ID}, ids)
}

func TestResolveRefs_UnpublishedFailsWhole(t *testing.T) {
	svc, _, _ := newService(t)
	published := svc.Register(rctx, model.RegisterDatasetRequest{Filename: "a.csv"})
	_, err := svc.EnsurePublished(context.Background(), rctx, published.ID)
	require.NoError(t, err)
	unpublished := svc.Register(rctx, model.RegisterDatasetRequest{Filename: "b.csv"})

	for _, ids := range [][]string{
		{published.ID, unpublished.ID},
		{"dataset-does-not-exist"},
	} {
		_, err := svc.ResolveRefs(rctx, ids)
		var pe *model.PlatformError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, model.ErrCodeDatasetNotPublished, pe.Code)
		assert.Equal(t, http.StatusNotFound, pe.Status)
	}
}
