// Package dataset manages the dataset publish lifecycle and the mapping from
// platform dataset IDs to provider data IDs.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lonalabs/lona/internal/adapters"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

// Provider data IDs are allocated as providerIDPrefix + dataset ID.
const providerIDPrefix = "lona-symbol-"

// Service owns dataset registration, publishing, and reference resolution.
type Service struct {
	st     *store.Store
	bridge adapters.DataBridge
	logger *slog.Logger
}

// NewService creates the dataset service.
func NewService(st *store.Store, bridge adapters.DataBridge, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{st: st, bridge: bridge, logger: logger}
}

// Register records a new dataset at the start of its lifecycle.
func (s *Service) Register(rctx model.RequestContext, req model.RegisterDatasetRequest) model.Dataset {
	return s.st.CreateDataset(rctx, model.Dataset{
		Filename:  req.Filename,
		SizeBytes: req.SizeBytes,
		Status:    model.DatasetInitialized,
	})
}

// ResolveRefs maps dataset IDs to provider data IDs. Every dataset must
// already be published; anything else fails the whole resolution.
func (s *Service) ResolveRefs(rctx model.RequestContext, datasetIDs []string) ([]string, error) {
	providerIDs := make([]string, 0, len(datasetIDs))
	for _, id := range datasetIDs {
		ds, err := s.st.GetDataset(rctx, id)
		if err != nil || ds.Status != model.DatasetPublished || ds.ProviderDataID == "" {
			return nil, model.NewPlatformError(model.ErrCodeDatasetNotPublished, http.StatusNotFound,
				fmt.Sprintf("dataset %q is not published", id))
		}
		providerIDs = append(providerIDs, ds.ProviderDataID)
	}
	return providerIDs, nil
}

// EnsurePublished publishes a dataset to the provider if it is not already,
// allocating a stable provider data ID on first publish. The mapping is
// reused on every later call.
func (s *Service) EnsurePublished(ctx context.Context, rctx model.RequestContext, datasetID string) (model.Dataset, error) {
	ds, err := s.st.GetDataset(rctx, datasetID)
	if err != nil {
		return model.Dataset{}, model.NotFound(model.ErrCodeDatasetNotFound, datasetID)
	}
	if ds.Status == model.DatasetPublished && ds.ProviderDataID != "" {
		return ds, nil
	}

	providerDataID := ds.ProviderDataID
	if providerDataID == "" {
		providerDataID = providerIDPrefix + ds.ID
	}

	if err := s.bridge.PublishDataset(ctx, providerDataID, ds.Filename); err != nil {
		if _, updateErr := s.st.UpdateDataset(rctx, datasetID, func(d *model.Dataset) {
			d.Status = model.DatasetPublishFailed
			d.ProviderDataID = providerDataID
		}); updateErr != nil {
			return model.Dataset{}, model.Internal(updateErr)
		}
		s.logger.Error("dataset publish failed",
			"datasetId", datasetID, "providerDataId", providerDataID, "error", err)
		return model.Dataset{}, model.NewPlatformError(model.ErrCodeDatasetPublishFailed, http.StatusBadGateway,
			fmt.Sprintf("publishing dataset %q to the provider failed", datasetID))
	}

	published, err := s.st.UpdateDataset(rctx, datasetID, func(d *model.Dataset) {
		d.Status = model.DatasetPublished
		d.ProviderDataID = providerDataID
	})
	if err != nil {
		return model.Dataset{}, model.Internal(err)
	}
	s.logger.Info("dataset published",
		"datasetId", datasetID, "providerDataId", providerDataID,
		"tenantId", rctx.TenantID, "requestId", rctx.RequestID)
	return published, nil
}
