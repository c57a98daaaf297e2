package sources

import (
	"context"

	"github.com/wsuscatalog/wsuscatalog/internal/progress"
	"github.com/wsuscatalog/wsuscatalog/internal/upstream"
)

// categoryPartition is the fixed store partition every category-kind
// package (detectoid, product, classification) lands in.
const categoryPartition = "categories"

// CategoriesSource pulls the full category set (detectoids, products,
// classifications) from an upstream endpoint.
type CategoriesSource struct {
	client *upstream.Client
}

// NewCategoriesSource builds a CategoriesSource against client.
func NewCategoriesSource(client *upstream.Client) *CategoriesSource {
	return &CategoriesSource{client: client}
}

// Sync resolves every category identity (filter.GetConfig=true) and copies
// the ones dest doesn't already hold, reporting progress as batches land.
func (s *CategoriesSource) Sync(ctx context.Context, dest Destination, onProgress progress.Func) error {
	filter := upstream.ServerSyncFilter{GetConfig: true}
	return pull(ctx, s.client, dest, func(upstream.RevisionID) string { return categoryPartition }, filter, onProgress)
}
