package downstream

import (
	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// unionIndex gathers every package listed under any of keys in idx,
// deduplicated by identity.
func unionIndex(idx map[identity.GUID][]*xmlmeta.Package, keys []identity.GUID) []*xmlmeta.Package {
	seen := make(map[identity.PackageIdentity]bool)
	var out []*xmlmeta.Package
	for _, key := range keys {
		for _, pkg := range idx[key] {
			if seen[pkg.Identity] {
				continue
			}
			seen[pkg.Identity] = true
			out = append(out, pkg)
		}
	}
	return out
}

// intersectRefs returns the packages present in both a and b, by identity.
func intersectRefs(a, b []*xmlmeta.Package) []*xmlmeta.Package {
	inB := make(map[identity.PackageIdentity]bool, len(b))
	for _, pkg := range b {
		inB[pkg.Identity] = true
	}
	var out []*xmlmeta.Package
	for _, pkg := range a {
		if inB[pkg.Identity] {
			out = append(out, pkg)
		}
	}
	return out
}

// addBundleClosure unions in one level of bundled-update targets for every
// software update in matched, so a client requesting a bundling update
// always sees its bundled set too.
func addBundleClosure(matched []*xmlmeta.Package, byUpdateID map[identity.GUID]*xmlmeta.Package) []*xmlmeta.Package {
	seen := make(map[identity.PackageIdentity]bool, len(matched))
	out := make([]*xmlmeta.Package, 0, len(matched))
	for _, pkg := range matched {
		if seen[pkg.Identity] {
			continue
		}
		seen[pkg.Identity] = true
		out = append(out, pkg)
	}

	for _, pkg := range matched {
		if pkg.Kind != xmlmeta.KindSoftwareUpdate {
			continue
		}
		for _, bundled := range pkg.BundledUpdates {
			target, ok := byUpdateID[bundled.UpdateID]
			if !ok || seen[target.Identity] {
				continue
			}
			seen[target.Identity] = true
			out = append(out, target)
		}
	}
	return out
}
