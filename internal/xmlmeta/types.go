// Package xmlmeta parses a single update's XML metadata blob into a typed
// Package value. The wire format nests type-specific data under a handful
// of well-known elements; this package leans on encoding/xml struct tags
// to unmarshal once into an internal shape, then projects into the typed
// Package the rest of the catalog uses.
package xmlmeta

import (
	"time"

	"github.com/wsuscatalog/wsuscatalog/internal/identity"
)

// PackageKind discriminates the five update variants. A single struct
// carries every variant's fields rather than five structs behind an
// interface.
type PackageKind int

const (
	KindDetectoid PackageKind = iota
	KindProductCategory
	KindClassificationCategory
	KindSoftwareUpdate
	KindDriverUpdate
)

func (k PackageKind) String() string {
	switch k {
	case KindDetectoid:
		return "Detectoid"
	case KindProductCategory:
		return "ProductCategory"
	case KindClassificationCategory:
		return "ClassificationCategory"
	case KindSoftwareUpdate:
		return "SoftwareUpdate"
	case KindDriverUpdate:
		return "DriverUpdate"
	default:
		return "Unknown"
	}
}

// PrerequisiteKind discriminates the two prerequisite shapes: a bare
// required update, or an "at least one of" group.
type PrerequisiteKind int

const (
	PrereqSimple PrerequisiteKind = iota
	PrereqAtLeastOne
)

// Prerequisite is either a single required UpdateID (Simple) or a group of
// candidate UpdateIDs of which at least one must be installed/known
// (AtLeastOne). IsCategory marks a group whose members are category IDs
// rather than ordinary prerequisite updates.
type Prerequisite struct {
	Kind       PrerequisiteKind
	UpdateID   identity.GUID   // valid when Kind == PrereqSimple
	UpdateIDs  []identity.GUID // valid when Kind == PrereqAtLeastOne
	IsCategory bool            // valid when Kind == PrereqAtLeastOne
}

// Digest is one named hash of a file's bytes.
type Digest struct {
	Algorithm string // "SHA512", "SHA256", "SHA1"
	Base64    string
}

// SourceURLs is the pair of download locations the upstream URL table
// associates with a file's digest.
type SourceURLs struct {
	MU  string
	USS string
}

// ContentFile describes one downloadable payload attached to an update.
type ContentFile struct {
	FileName      string
	Size          int64
	Modified      time.Time
	Digests       []Digest
	PrimaryDigest Digest
	PatchingType  string
	URLs          SourceURLs
}

// DigestKey is the base64 of a file's first digest, used as its dedup
// identity across the catalog.
func (f ContentFile) DigestKey() string {
	if len(f.Digests) == 0 {
		return ""
	}
	return f.Digests[0].Base64
}

// DriverVersion is a WHQL driver's date + packed 4-part version, compared
// date-first then by the packed integer.
type DriverVersion struct {
	Date   time.Time
	Packed uint64
}

// Compare returns -1, 0 or 1 the way time.Time.Compare / cmp.Compare do.
func (v DriverVersion) Compare(other DriverVersion) int {
	if !v.Date.Equal(other.Date) {
		if v.Date.Before(other.Date) {
			return -1
		}
		return 1
	}
	switch {
	case v.Packed < other.Packed:
		return -1
	case v.Packed > other.Packed:
		return 1
	default:
		return 0
	}
}

// FeatureScore is a per-OS-version preference value; lower Score wins.
type FeatureScore struct {
	OSVersionID string
	Score       int
}

// DriverMetadata is one hardware-ID match record for a driver update; a
// single driver update can carry many of these, one per applicable
// hardware ID.
type DriverMetadata struct {
	HardwareID                string // always lowercased
	WHQLDriverID              string
	Manufacturer              string
	Company                   string
	Provider                  string
	Class                     string
	Version                   DriverVersion
	FeatureScores             []FeatureScore
	DistributionComputerHWIDs []string
	TargetComputerHWIDs       []string
}

// Package is the parsed representation of one update's XML metadata blob.
// Common fields are always populated; variant-specific fields are zero
// unless Kind matches.
type Package struct {
	Identity    identity.PackageIdentity
	Kind        PackageKind
	Title       string
	Description string
	Prereqs     []Prerequisite
	CategoryIDs []identity.GUID // derived from Prereqs, see deriveCategoryIDs
	Files       []ContentFile

	// SoftwareUpdate-only
	KBArticleID       string
	BundledUpdates    []identity.PackageIdentity
	SupersededUpdates []identity.GUID

	// DriverUpdate-only
	DriverRecords []DriverMetadata

	// CategoryType for ProductCategory/ClassificationCategory ("Product",
	// "Classification"); empty for other kinds.
	CategoryType string

	rawBytes []byte
}

// RawBytes returns the immutable raw metadata bytes, or nil if they have
// been released.
func (p *Package) RawBytes() []byte { return p.rawBytes }

// ReleaseRawBytes drops the retained raw XML once it is no longer needed
// (e.g. after a batch has been persisted to the store), freeing memory
// during large pulls.
func (p *Package) ReleaseRawBytes() { p.rawBytes = nil }

// IsApplicable reports whether every Simple prerequisite and at least one
// member of every non-category AtLeastOne group appear in installed.
func IsApplicable(prereqs []Prerequisite, installed map[identity.GUID]bool) bool {
	for _, p := range prereqs {
		switch p.Kind {
		case PrereqSimple:
			if !installed[p.UpdateID] {
				return false
			}
		case PrereqAtLeastOne:
			if p.IsCategory {
				continue
			}
			ok := false
			for _, id := range p.UpdateIDs {
				if installed[id] {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
	}
	return true
}

// deriveCategoryIDs computes a package's category/classification IDs: the
// union of Simple IDs inside every AtLeastOne{IsCategory: true} group that
// resolves to a known category. isKnownCategory lets the
// caller (typically the package store) restrict to IDs it actually holds.
func deriveCategoryIDs(prereqs []Prerequisite, isKnownCategory func(identity.GUID) bool) []identity.GUID {
	var out []identity.GUID
	seen := make(map[identity.GUID]bool)
	for _, p := range prereqs {
		if p.Kind != PrereqAtLeastOne || !p.IsCategory {
			continue
		}
		for _, id := range p.UpdateIDs {
			if seen[id] {
				continue
			}
			if isKnownCategory == nil || isKnownCategory(id) {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// DeriveCategoryIDs is the exported form of deriveCategoryIDs, used by
// callers (package store, index container) that know which GUIDs are
// categories.
func DeriveCategoryIDs(prereqs []Prerequisite, isKnownCategory func(identity.GUID) bool) []identity.GUID {
	return deriveCategoryIDs(prereqs, isKnownCategory)
}
