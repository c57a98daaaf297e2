package sources

import (
	"context"

	"github.com/wsuscatalog/wsuscatalog/internal/progress"
	"github.com/wsuscatalog/wsuscatalog/internal/upstream"
)

// updatePartition is the store partition every non-category package
// (software, driver) lands in.
const updatePartition = "updates"

// UpdatesSource pulls software/driver updates scoped by a
// product/classification Filter.
type UpdatesSource struct {
	client *upstream.Client
	filter Filter
}

// NewUpdatesSource builds an UpdatesSource against client scoped to filter.
// An empty filter matches nothing at the upstream.
func NewUpdatesSource(client *upstream.Client, filter Filter) *UpdatesSource {
	return &UpdatesSource{client: client, filter: filter}
}

// Sync resolves every identity in scope and copies the ones dest doesn't
// already hold, reporting progress as batches land.
func (s *UpdatesSource) Sync(ctx context.Context, dest Destination, onProgress progress.Func) error {
	ssf := s.filter.toServerSyncFilter(false, "")
	return pull(ctx, s.client, dest, func(upstream.RevisionID) string { return updatePartition }, ssf, onProgress)
}

// Filter returns the scope this source was constructed with.
func (s *UpdatesSource) Filter() Filter { return s.filter }
