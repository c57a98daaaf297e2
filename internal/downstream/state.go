package downstream

import (
	"fmt"
	"sync"

	"github.com/wsuscatalog/wsuscatalog/internal/contentstore"
	"github.com/wsuscatalog/wsuscatalog/internal/filter"
	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/store"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// ServerSyncConfigData is the subset of the upstream ServerSyncConfigData
// shape the downstream server echoes back verbatim.
type ServerSyncConfigData struct {
	MaxNumberOfUpdatesPerRequest int    `json:"maxNumberOfUpdatesPerRequest"`
	ProtocolVersion              string `json:"protocolVersion"`
	CatalogOnlySync              bool   `json:"catalogOnlySync"`
}

// servedState is the precomputed read-path view built at startup:
// Categories, Updates, and the product/
// classification indexes, plus a hardware-ID index for driver matching.
// Rebuilt wholesale under the writer side of Server.mu whenever the
// backing store changes.
type servedState struct {
	categories []*xmlmeta.Package
	updates    []*xmlmeta.Package

	byUpdateID      map[identity.GUID]*xmlmeta.Package
	productsIndex   map[identity.GUID][]*xmlmeta.Package
	classifications map[identity.GUID][]*xmlmeta.Package
	hardwareIndex   filter.HardwareIndex
}

// Server serves the ServerSync/DSS/content endpoints. The zero value is
// not usable; construct with NewServer.
type Server struct {
	mu sync.RWMutex

	store   *store.Store
	content *contentstore.Store // nil means catalog-only sync

	cfg   ServerSyncConfigData
	state servedState
}

// NewServer builds a Server with no backing store yet; call SetPackageStore
// before serving requests. content may be nil for catalog-only sync.
func NewServer(cfg ServerSyncConfigData, content *contentstore.Store) *Server {
	return &Server{cfg: cfg, content: content}
}

// SetPackageStore installs s as the backing store and rebuilds the served
// state atomically under the writer lock.
func (srv *Server) SetPackageStore(s *store.Store) error {
	state, err := buildServedState(s)
	if err != nil {
		return fmt.Errorf("downstream: build served state: %w", err)
	}
	srv.mu.Lock()
	srv.store = s
	srv.state = state
	srv.mu.Unlock()
	return nil
}

func buildServedState(s *store.Store) (servedState, error) {
	state := servedState{
		byUpdateID:      make(map[identity.GUID]*xmlmeta.Package),
		productsIndex:   make(map[identity.GUID][]*xmlmeta.Package),
		classifications: make(map[identity.GUID][]*xmlmeta.Package),
	}

	for _, id := range s.Identities() {
		pkg, err := s.GetPackage(id)
		if err != nil {
			return servedState{}, fmt.Errorf("load %s: %w", id, err)
		}
		pkg.ReleaseRawBytes()
		state.byUpdateID[pkg.Identity.UpdateID] = pkg

		switch pkg.Kind {
		case xmlmeta.KindDetectoid, xmlmeta.KindProductCategory, xmlmeta.KindClassificationCategory:
			state.categories = append(state.categories, pkg)
		case xmlmeta.KindSoftwareUpdate, xmlmeta.KindDriverUpdate:
			state.updates = append(state.updates, pkg)
		}
	}

	isProduct := make(map[identity.GUID]bool)
	isClassification := make(map[identity.GUID]bool)
	for _, cat := range state.categories {
		switch cat.Kind {
		case xmlmeta.KindProductCategory:
			isProduct[cat.Identity.UpdateID] = true
		case xmlmeta.KindClassificationCategory:
			isClassification[cat.Identity.UpdateID] = true
		}
	}

	for _, u := range state.updates {
		for _, catID := range referencedCategoryIDs(u.Prereqs) {
			if isProduct[catID] {
				state.productsIndex[catID] = append(state.productsIndex[catID], u)
			}
			if isClassification[catID] {
				state.classifications[catID] = append(state.classifications[catID], u)
			}
		}
	}

	state.hardwareIndex = filter.BuildHardwareIndex(state.updates)
	return state, nil
}

// MatchDriver runs the driver-match read-path algorithm
// against the currently served hardware-ID index: given a client's ordered
// hardware IDs, computer hardware IDs, and installed-prerequisite GUIDs, it
// returns the single best-matching driver record, if any.
func (srv *Server) MatchDriver(hardwareIDs, computerHWIDs []string, installed map[identity.GUID]bool) (xmlmeta.DriverMetadata, bool) {
	srv.mu.RLock()
	idx := srv.state.hardwareIndex
	srv.mu.RUnlock()
	return filter.MatchDriver(idx, hardwareIDs, computerHWIDs, installed)
}

// referencedCategoryIDs collects every GUID a package's prerequisites name,
// whether as a bare Simple reference or inside an AtLeastOne group,
// regardless of that group's IsCategory flag.
func referencedCategoryIDs(prereqs []xmlmeta.Prerequisite) []identity.GUID {
	seen := make(map[identity.GUID]bool)
	var out []identity.GUID
	add := func(id identity.GUID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, p := range prereqs {
		switch p.Kind {
		case xmlmeta.PrereqSimple:
			add(p.UpdateID)
		case xmlmeta.PrereqAtLeastOne:
			for _, id := range p.UpdateIDs {
				add(id)
			}
		}
	}
	return out
}
