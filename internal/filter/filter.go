// Package filter implements the catalog query engine: a fixed pipeline of
// subtractive filters applied to a candidate pool of packages that carry
// product/classification category IDs.
package filter

import (
	"strings"

	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// Query is the catalog filter shape. Empty Products and Classifications
// match all of that axis; empty FirstX, IDs, and Title mean "don't
// restrict".
type Query struct {
	Products         []identity.GUID
	Classifications  []identity.GUID
	Title            string
	IDs              []identity.GUID
	SkipSuperseded   bool
	// PerPkgSuperseded changes how SkipSuperseded evaluates each package:
	// against the full candidate pool instead of the already-filtered
	// subset, so a package stays excluded even when its superseder was
	// removed by an earlier pipeline step. Without it, supersedence is
	// judged only among the packages that survived the other filters.
	PerPkgSuperseded bool
	FirstX           int
}

// Apply runs the filter pipeline in a fixed order: classification
// subtractive, product subtractive, title (case-insensitive AND over
// whitespace-split tokens), id whitelist, superseded filter, then take the
// first FirstX results. candidates is the full pool (categories excluded;
// only software/driver updates carry product and classification IDs).
func Apply(candidates []*xmlmeta.Package, q Query) []*xmlmeta.Package {
	out := candidates

	if len(q.Classifications) > 0 {
		out = filterByCategory(out, q.Classifications)
	}
	if len(q.Products) > 0 {
		out = filterByCategory(out, q.Products)
	}
	if q.Title != "" {
		out = filterByTitle(out, q.Title)
	}
	if len(q.IDs) > 0 {
		out = filterByIDs(out, q.IDs)
	}
	if q.SkipSuperseded {
		pool := out
		if q.PerPkgSuperseded {
			pool = candidates
		}
		out = filterSupersededAgainst(out, pool)
	}
	if q.FirstX > 0 && q.FirstX < len(out) {
		out = out[:q.FirstX]
	}
	return out
}

// filterByCategory keeps packages whose CategoryIDs intersect wanted.
func filterByCategory(pkgs []*xmlmeta.Package, wanted []identity.GUID) []*xmlmeta.Package {
	set := make(map[identity.GUID]bool, len(wanted))
	for _, id := range wanted {
		set[id] = true
	}
	var out []*xmlmeta.Package
	for _, p := range pkgs {
		for _, cat := range p.CategoryIDs {
			if set[cat] {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// filterByTitle keeps packages whose title contains every whitespace-split
// token of query, case-insensitively.
func filterByTitle(pkgs []*xmlmeta.Package, query string) []*xmlmeta.Package {
	tokens := strings.Fields(strings.ToLower(query))
	var out []*xmlmeta.Package
	for _, p := range pkgs {
		title := strings.ToLower(p.Title)
		matched := true
		for _, tok := range tokens {
			if !strings.Contains(title, tok) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, p)
		}
	}
	return out
}

// filterByIDs keeps packages whose UpdateID appears in ids.
func filterByIDs(pkgs []*xmlmeta.Package, ids []identity.GUID) []*xmlmeta.Package {
	set := make(map[identity.GUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	var out []*xmlmeta.Package
	for _, p := range pkgs {
		if set[p.Identity.UpdateID] {
			out = append(out, p)
		}
	}
	return out
}

// filterSupersededAgainst drops any package in pkgs that some package in
// pool lists in its SupersededUpdates. pool is pkgs itself for the
// pool-wide mode, or the full candidate set for the per-package mode.
func filterSupersededAgainst(pkgs, pool []*xmlmeta.Package) []*xmlmeta.Package {
	superseded := make(map[identity.GUID]bool)
	for _, p := range pool {
		for _, id := range p.SupersededUpdates {
			superseded[id] = true
		}
	}
	var out []*xmlmeta.Package
	for _, p := range pkgs {
		if !superseded[p.Identity.UpdateID] {
			out = append(out, p)
		}
	}
	return out
}
