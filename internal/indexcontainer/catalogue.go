package indexcontainer

import (
	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// Def is one catalogue entry: an index name, its applicability predicate,
// a constructor, and the update function invoked per indexed package. The
// registry lets new indexes be added declaratively rather than by touching
// every call site that walks "all indexes".
type Def struct {
	Name     string
	Version  int
	AppliesTo func(xmlmeta.PackageKind) bool
	New      func() Index
	Update   func(idx Index, pkgIndex int, pkg *xmlmeta.Package)
}

var catalogue = map[string]Def{}

func register(d Def) { catalogue[d.Name] = d }

func anyKind(xmlmeta.PackageKind) bool { return true }

func softwareOnly(k xmlmeta.PackageKind) bool { return k == xmlmeta.KindSoftwareUpdate }

func driverOnly(k xmlmeta.PackageKind) bool { return k == xmlmeta.KindDriverUpdate }

func init() {
	register(Def{
		Name: "mu-titles", Version: 1, AppliesTo: anyKind,
		New: func() Index { return NewSimpleIndex[string]("mu-titles", 1) },
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			idx.(*SimpleIndex[string]).Set(pkgIndex, pkg.Title)
		},
	})

	register(Def{
		Name: "mu-descriptions", Version: 1, AppliesTo: anyKind,
		New: func() Index { return NewSimpleIndex[string]("mu-descriptions", 1) },
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			idx.(*SimpleIndex[string]).Set(pkgIndex, pkg.Description)
		},
	})

	register(Def{
		Name: "mu-categories", Version: 1, AppliesTo: anyKind,
		New: func() Index { return NewListIndex[int, identity.GUID]("mu-categories", 1) },
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			li := idx.(*ListIndex[int, identity.GUID])
			li.Set(pkgIndex, append([]identity.GUID(nil), pkg.CategoryIDs...))
		},
	})

	// mu-prerequisites stores each package's prerequisite groups as GUID
	// lists; a sentinel empty-GUID is prepended to a group's list to mark
	// it as a category group, so the read path can
	// tell category groups from ordinary AtLeastOne groups without
	// carrying a parallel bool slice through the wire format.
	register(Def{
		Name: "mu-prerequisites", Version: 1, AppliesTo: anyKind,
		New: func() Index { return NewSimpleIndex[[][]identity.GUID]("mu-prerequisites", 1) },
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			si := idx.(*SimpleIndex[[][]identity.GUID])
			var groups [][]identity.GUID
			for _, p := range pkg.Prereqs {
				switch p.Kind {
				case xmlmeta.PrereqSimple:
					groups = append(groups, []identity.GUID{p.UpdateID})
				case xmlmeta.PrereqAtLeastOne:
					group := p.UpdateIDs
					if p.IsCategory {
						group = append([]identity.GUID{identity.Nil}, group...)
					}
					groups = append(groups, group)
				}
			}
			si.Set(pkgIndex, groups)
		},
	})

	register(Def{
		Name: "mu-files", Version: 1, AppliesTo: anyKind,
		New: func() Index { return NewSimpleIndex[[]xmlmeta.ContentFile]("mu-files", 1) },
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			idx.(*SimpleIndex[[]xmlmeta.ContentFile]).Set(pkgIndex, pkg.Files)
		},
	})

	register(Def{
		Name: "mu-kbarticle", Version: 1, AppliesTo: softwareOnly,
		New: func() Index { return NewSimpleIndex[string]("mu-kbarticle", 1) },
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			idx.(*SimpleIndex[string]).Set(pkgIndex, pkg.KBArticleID)
		},
	})

	register(Def{
		Name: "mu-is-bundle", Version: 1, AppliesTo: softwareOnly,
		New: func() Index { return NewSimpleIndex[[]identity.PackageIdentity]("mu-is-bundle", 1) },
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			idx.(*SimpleIndex[[]identity.PackageIdentity]).Set(pkgIndex, pkg.BundledUpdates)
		},
	})

	// mu-bundled-with is the inverse of mu-is-bundle: for every bundle
	// target a package names, record the bundling package's pkgIndex
	// under that target's identity.
	register(Def{
		Name: "mu-bundled-with", Version: 1, AppliesTo: softwareOnly,
		New: func() Index {
			return NewListIndex[identity.PackageIdentity, int]("mu-bundled-with", 1)
		},
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			li := idx.(*ListIndex[identity.PackageIdentity, int])
			for _, target := range pkg.BundledUpdates {
				li.Add(target, pkgIndex)
			}
		},
	})

	// mu-is-superseded is the inverse of a package's SupersededUpdates: for
	// every UpdateID a package supersedes, record this package's pkgIndex
	// under that UpdateID.
	register(Def{
		Name: "mu-is-superseded", Version: 1, AppliesTo: softwareOnly,
		New: func() Index { return NewListIndex[identity.GUID, int]("mu-is-superseded", 1) },
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			li := idx.(*ListIndex[identity.GUID, int])
			for _, supersededID := range pkg.SupersededUpdates {
				li.Add(supersededID, pkgIndex)
			}
		},
	})

	register(Def{
		Name: "mu-is-superseding", Version: 1, AppliesTo: softwareOnly,
		New: func() Index { return NewSimpleIndex[[]identity.GUID]("mu-is-superseding", 1) },
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			idx.(*SimpleIndex[[]identity.GUID]).Set(pkgIndex, pkg.SupersededUpdates)
		},
	})

	register(Def{
		Name: "mu-driver-metadata", Version: 1, AppliesTo: driverOnly,
		New: func() Index { return NewSimpleIndex[[]xmlmeta.DriverMetadata]("mu-driver-metadata", 1) },
		Update: func(idx Index, pkgIndex int, pkg *xmlmeta.Package) {
			idx.(*SimpleIndex[[]xmlmeta.DriverMetadata]).Set(pkgIndex, pkg.DriverRecords)
		},
	})
}

// Names returns every registered index name, in no guaranteed order;
// callers that need a stable order should sort the result themselves.
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	return names
}
