// Package store implements the append-only on-disk package store: a table
// of contents, an ordered list of delta segments holding raw update
// metadata, per-partition identity maps, and a bundled secondary-index
// container.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wsuscatalog/wsuscatalog/internal/catalogerr"
	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/indexcontainer"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// categoryPartition mirrors internal/sources.categoryPartition: every
// detectoid/product/classification package lands here. Duplicated rather
// than imported to avoid a store<->sources import cycle; the two packages
// agree on the literal by convention.
const categoryPartition = "categories"

// ProgressFunc receives a running count during a long-running scan such as
// ReIndex. nil is a valid no-op listener.
type ProgressFunc func(done int)

// Store is a single catalog's on-disk package store. The zero value is not
// usable; construct one with OpenOrCreate.
type Store struct {
	dir string

	mu sync.RWMutex // guards everything below; single writer, many readers

	toc            *toc
	types          map[int]string // pkgIndex -> partition
	identityToIdx  map[identity.PackageIdentity]int
	idxToIdentity  []identity.PackageIdentity // index by pkgIndex
	partitionIdent map[string][]identityRecord
	categoryGUIDs  map[identity.GUID]bool // UpdateIDs of every known category package

	current *openSegment
	index   *indexcontainer.Container

	isReindexingRequired bool
	dirty                bool
}

// OpenOrCreate opens an existing store rooted at dir, or creates an empty
// one if dir does not yet hold a store.
func OpenOrCreate(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}

	s := &Store{
		dir:            dir,
		identityToIdx:  make(map[identity.PackageIdentity]int),
		partitionIdent: make(map[string][]identityRecord),
		categoryGUIDs:  make(map[identity.GUID]bool),
	}

	t, err := loadTOC(dir)
	switch {
	case os.IsNotExist(err):
		s.toc = &toc{Version: tocVersion}
		s.types = make(map[int]string)
		s.index = indexcontainer.New()
		// Nothing on disk yet; the first Flush must still write the empty
		// TOC so a reopen sees a store, not a missing one.
		s.dirty = true
	case err != nil:
		return nil, fmt.Errorf("store: load toc (%v): %w", err, catalogerr.ErrCorruptStore)
	default:
		s.toc = t
		types, err := loadTypes(dir)
		if err != nil {
			return nil, fmt.Errorf("store: load types: %w", err)
		}
		s.types = types

		partitions := make(map[string]bool)
		for _, p := range types {
			partitions[p] = true
		}
		for partition := range partitions {
			recs, err := loadIdentities(dir, partition)
			if err != nil {
				return nil, fmt.Errorf("store: load identities for %s: %w", partition, err)
			}
			s.partitionIdent[partition] = recs
		}

		idx, err := openIndexContainer(dir)
		if err != nil {
			return nil, fmt.Errorf("store: open index container: %w", err)
		}
		s.index = idx
		s.isReindexingRequired = idx.Status() != indexcontainer.StatusValid
		if _, statErr := os.Stat(filepath.Join(dir, ".indexes.zip")); os.IsNotExist(statErr) {
			s.isReindexingRequired = true
		}

		s.idxToIdentity = make([]identity.PackageIdentity, totalPackages(t))
		for partition, recs := range s.partitionIdent {
			for _, r := range recs {
				id := identity.New(partition, r.Identity.UpdateID, r.Identity.Revision)
				s.identityToIdx[id] = r.PkgIndex
				if r.PkgIndex < len(s.idxToIdentity) {
					s.idxToIdentity[r.PkgIndex] = id
				}
				if partition == categoryPartition {
					s.categoryGUIDs[r.Identity.UpdateID] = true
				}
			}
		}
	}

	s.current = &openSegment{index: s.toc.DeltaSectionCount}
	return s, nil
}

func totalPackages(t *toc) int {
	if len(t.DeltaSectionPackageCount) == 0 {
		return 0
	}
	return t.DeltaSectionPackageCount[len(t.DeltaSectionPackageCount)-1]
}

func openIndexContainer(dir string) (*indexcontainer.Container, error) {
	path := filepath.Join(dir, ".indexes.zip")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return indexcontainer.New(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return indexcontainer.OpenFile(f, stat.Size())
}

// ContainsPackage reports whether id is already present (O(1) lookup).
func (s *Store) ContainsPackage(id identity.PackageIdentity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.identityToIdx[id]
	return ok
}

// Count returns the total number of packages across every partition.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idxToIdentity)
}

// IsReindexingRequired reports whether the index container was missing,
// corrupt, wrong-version, or held unknown index names when last opened.
func (s *Store) IsReindexingRequired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isReindexingRequired
}

// AddPackage appends pkg to the store if its identity is not already
// present; a duplicate identity is a silent no-op.
func (s *Store) AddPackage(pkg *xmlmeta.Package, rawXML []byte, urlTable xmlmeta.URLTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pkg.Identity.Partition == "" {
		return fmt.Errorf("store: add %s: %w", pkg.Identity.UpdateID, catalogerr.ErrUnknownPartition)
	}
	if _, ok := s.identityToIdx[pkg.Identity]; ok {
		return nil
	}

	pkgIndex := len(s.idxToIdentity)
	s.current.append(pkgIndex, rawXML, urlTable)

	s.identityToIdx[pkg.Identity] = pkgIndex
	s.idxToIdentity = append(s.idxToIdentity, pkg.Identity)

	partition := pkg.Identity.Partition
	s.types[pkgIndex] = partition
	rec := identityRecord{PkgIndex: pkgIndex, Identity: pkg.Identity}
	s.partitionIdent[partition] = append(s.partitionIdent[partition], rec)

	if partition == categoryPartition {
		s.categoryGUIDs[pkg.Identity.UpdateID] = true
	}
	pkg.CategoryIDs = xmlmeta.DeriveCategoryIDs(pkg.Prereqs, func(id identity.GUID) bool { return s.categoryGUIDs[id] })

	if err := s.index.IndexPackage(partition, pkgIndex, pkg); err != nil {
		return fmt.Errorf("store: index package %s: %w", pkg.Identity, err)
	}

	s.dirty = true
	return nil
}

// Flush closes the current delta segment and persists the TOC,
// per-partition identity files, package-type map, and index container via
// atomic rename.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if !s.dirty {
		return nil
	}

	if len(s.current.entries) > 0 {
		if err := s.current.flush(s.dir); err != nil {
			return err
		}
		s.toc.DeltaSectionCount++
		s.toc.DeltaSectionPackageCount = append(s.toc.DeltaSectionPackageCount, len(s.idxToIdentity))
		s.current = &openSegment{index: s.toc.DeltaSectionCount}
	}

	if err := s.toc.save(s.dir); err != nil {
		return fmt.Errorf("store: save toc: %w", err)
	}
	if err := saveTypes(s.dir, s.types); err != nil {
		return fmt.Errorf("store: save types: %w", err)
	}
	for partition, recs := range s.partitionIdent {
		if err := saveIdentities(s.dir, partition, recs); err != nil {
			return fmt.Errorf("store: save identities for %s: %w", partition, err)
		}
	}

	path := filepath.Join(s.dir, ".indexes.zip")
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("store: create index container temp file: %w", err)
	}
	if err := s.index.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("store: save index container: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close index container temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: rename index container into place: %w", err)
	}

	s.dirty = false
	return nil
}

// GetPackage rehydrates a package by its identity.
func (s *Store) GetPackage(id identity.PackageIdentity) (*xmlmeta.Package, error) {
	s.mu.RLock()
	pkgIndex, ok := s.identityToIdx[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: %s: %w", id, catalogerr.ErrKeyNotFound)
	}
	return s.GetPackageByIndex(pkgIndex)
}

// GetPackageByIndex rehydrates a package by its dense pkgIndex, locating
// the owning delta segment via binary search over DeltaSectionPackageCount.
// Packages still sitting in the open segment are read from memory.
func (s *Store) GetPackageByIndex(pkgIndex int) (*xmlmeta.Package, error) {
	s.mu.RLock()
	if pkgIndex < 0 || pkgIndex >= len(s.idxToIdentity) {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store: pkgIndex %d: %w", pkgIndex, catalogerr.ErrIndexOutOfRange)
	}
	wantIdentity := s.idxToIdentity[pkgIndex]
	rawXML, urlTable, err := s.readRawLocked(pkgIndex)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	pkg, err := xmlmeta.Parse(rawXML, urlTable)
	if err != nil {
		return nil, fmt.Errorf("store: parse pkgIndex %d: %w", pkgIndex, err)
	}
	// Parse has no notion of partition; restore it from the identity map
	// so the rehydrated package's Identity matches what AddPackage stored.
	pkg.Identity = wantIdentity
	pkg.CategoryIDs = xmlmeta.DeriveCategoryIDs(pkg.Prereqs, s.isKnownCategory)
	return pkg, nil
}

// readRawLocked fetches pkgIndex's raw XML and URL table: from the open
// segment's in-memory entries if the index has not been flushed yet,
// otherwise from its flushed segment file. Callers hold s.mu (either mode).
func (s *Store) readRawLocked(pkgIndex int) ([]byte, xmlmeta.URLTable, error) {
	if pkgIndex >= totalPackages(s.toc) {
		for _, e := range s.current.entries {
			if e.pkgIndex == pkgIndex {
				return e.rawXML, e.urlTable, nil
			}
		}
		return nil, nil, fmt.Errorf("store: pkgIndex %d in open segment: %w", pkgIndex, catalogerr.ErrMissingMetadata)
	}
	return readFromSegment(s.dir, s.toc.segmentForIndex(pkgIndex), pkgIndex)
}

// isKnownCategory reports whether id is the UpdateID of a package in the
// category partition.
func (s *Store) isKnownCategory(id identity.GUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoryGUIDs[id]
}

// CopyTo materializes the store's identities (optionally filtered),
// subtracts ids already present in dest, and pushes the remainder in
// bounded-parallel batches. ctx cancellation aborts further pushes at
// batch boundaries; an in-flight batch is allowed to finish.
func (s *Store) CopyTo(ctx context.Context, dest *Store, filter func(identity.PackageIdentity) bool) error {
	s.mu.RLock()
	ids := make([]identity.PackageIdentity, 0, len(s.idxToIdentity))
	for _, id := range s.idxToIdentity {
		if filter == nil || filter(id) {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	var toCopy []identity.PackageIdentity
	for _, id := range ids {
		if !dest.ContainsPackage(id) {
			toCopy = append(toCopy, id)
		}
	}

	const batchSize = 50
	const maxParallel = 4
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < len(toCopy); i += batchSize {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}

		end := i + batchSize
		if end > len(toCopy) {
			end = len(toCopy)
		}
		batch := toCopy[i:end]

		sem <- struct{}{}
		wg.Add(1)
		go func(batch []identity.PackageIdentity) {
			defer wg.Done()
			defer func() { <-sem }()
			for _, id := range batch {
				pkg, err := s.GetPackage(id)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				raw := pkg.RawBytes()
				if err := dest.AddPackage(pkg, raw, nil); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				pkg.ReleaseRawBytes()
			}
		}(batch)
	}
	wg.Wait()
	return firstErr
}

// ReIndex drops the index container and rebuilds every registered index by
// walking every segment, emitting progress every 100 packages.
func (s *Store) ReIndex(progress ProgressFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = indexcontainer.New()

	for pkgIndex, id := range s.idxToIdentity {
		rawXML, urlTable, err := s.readRawLocked(pkgIndex)
		if err != nil {
			return fmt.Errorf("store: reindex pkgIndex %d: %w", pkgIndex, err)
		}
		pkg, err := xmlmeta.Parse(rawXML, urlTable)
		if err != nil {
			return fmt.Errorf("store: reindex parse pkgIndex %d: %w", pkgIndex, err)
		}
		pkg.Identity = id
		pkg.CategoryIDs = xmlmeta.DeriveCategoryIDs(pkg.Prereqs, func(gid identity.GUID) bool { return s.categoryGUIDs[gid] })
		if err := s.index.IndexPackage(id.Partition, pkgIndex, pkg); err != nil {
			return fmt.Errorf("store: reindex IndexPackage pkgIndex %d: %w", pkgIndex, err)
		}
		pkg.ReleaseRawBytes()

		if progress != nil && (pkgIndex+1)%100 == 0 {
			progress(pkgIndex + 1)
		}
	}

	s.isReindexingRequired = false
	s.dirty = true
	return s.flushLocked()
}

// IndexContainer exposes the store's secondary-index container for
// read-path lookups (product/classification indexes, driver metadata).
func (s *Store) IndexContainer() *indexcontainer.Container {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Identities returns a snapshot of every identity currently in the store,
// ordered by pkgIndex.
func (s *Store) Identities() []identity.PackageIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.PackageIdentity, len(s.idxToIdentity))
	copy(out, s.idxToIdentity)
	return out
}
