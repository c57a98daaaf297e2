// Package sources orchestrates the upstream pull: resolve identities via
// the SOAP client, diff against what the destination store already holds,
// and push the remainder in bounded parallel batches.
package sources

import (
	"context"
	"fmt"
	"sync"

	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/progress"
	"github.com/wsuscatalog/wsuscatalog/internal/upstream"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// clientBatchSize is the deliberate client-side chunk size, independent
// of and below whatever larger ceiling the server's GetConfigData call
// advertises.
const clientBatchSize = 50

// Destination is the subset of internal/store.Store this package needs: a
// writer-locked, content-addressed sink for parsed packages.
type Destination interface {
	ContainsPackage(id identity.PackageIdentity) bool
	AddPackage(pkg *xmlmeta.Package, rawXML []byte, urlTable xmlmeta.URLTable) error
}

// Filter carries the product/classification scope for an updates pull.
// Equality is set-equality on both lists.
type Filter struct {
	Products        []identity.GUID
	Classifications []identity.GUID
}

// Equal reports whether f and other cover the exact same product and
// classification sets, order-independent.
func (f Filter) Equal(other Filter) bool {
	return sameSet(f.Products, other.Products) && sameSet(f.Classifications, other.Classifications)
}

func sameSet(a, b []identity.GUID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[identity.GUID]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

func (f Filter) toServerSyncFilter(getConfig bool, anchor string) upstream.ServerSyncFilter {
	return upstream.ServerSyncFilter{
		GetConfig:       getConfig,
		Anchor:          anchor,
		Products:        f.Products,
		Classifications: f.Classifications,
	}
}

// partition picks the store partition a resolved revision lands in; both
// source types pass this straight through to identity.New.
type partitionFunc func(upstream.RevisionID) string

// pull is the shared body of CategoriesSource.Sync and UpdatesSource.Sync:
// resolve revision IDs, sort them, diff against dest, batch, fetch, parse,
// add, release raw bytes, report progress.
func pull(ctx context.Context, client *upstream.Client, dest Destination, partition partitionFunc, filter upstream.ServerSyncFilter, onProgress progress.Func) error {
	revList, err := client.RevisionIDs(ctx, filter)
	if err != nil {
		return fmt.Errorf("sources: resolve revision ids: %w", err)
	}

	ids := make([]identity.PackageIdentity, 0, len(revList.NewRevisions))
	revByIdentity := make(map[identity.PackageIdentity]upstream.RevisionID, len(revList.NewRevisions))
	for _, r := range revList.NewRevisions {
		id := identity.New(partition(r), r.UpdateID, r.Revision)
		ids = append(ids, id)
		revByIdentity[id] = r
	}
	identity.ByKey(ids)

	var toFetch []upstream.RevisionID
	for _, id := range ids {
		if !dest.ContainsPackage(id) {
			toFetch = append(toFetch, revByIdentity[id])
		}
	}

	const maxParallel = 4
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	var done int

	total := len(toFetch)
	for i := 0; i < total; i += clientBatchSize {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}

		end := i + clientBatchSize
		if end > total {
			end = total
		}
		batch := toFetch[i:end]

		sem <- struct{}{}
		wg.Add(1)
		go func(batch []upstream.RevisionID) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := client.UpdateData(ctx, batch)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("sources: fetch batch: %w", err)
				}
				mu.Unlock()
				return
			}

			for _, u := range result.Updates {
				pkg, err := xmlmeta.Parse(u.XML, result.URLTable)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("sources: parse %s@%d: %w", u.ID.UpdateID, u.ID.Revision, err)
					}
					mu.Unlock()
					return
				}
				pkg.Identity = identity.New(partition(u.ID), u.ID.UpdateID, u.ID.Revision)
				if err := dest.AddPackage(pkg, pkg.RawBytes(), result.URLTable); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("sources: add %s: %w", pkg.Identity, err)
					}
					mu.Unlock()
					return
				}
				pkg.ReleaseRawBytes()
			}

			mu.Lock()
			done += len(batch)
			progress.Emit(onProgress, progress.Event{Current: done, Maximum: total, Stage: "fetch-batch"})
			mu.Unlock()
		}(batch)
	}
	wg.Wait()
	return firstErr
}
