package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/wsuscatalog/wsuscatalog/internal/identity"
)

const tocVersion = 1

// toc is the persisted table of contents.
type toc struct {
	Version                  int   `json:"version"`
	DeltaSectionCount        int   `json:"deltaSectionCount"`
	DeltaSectionPackageCount []int `json:"deltaSectionPackageCount"`
}

func loadTOC(dir string) (*toc, error) {
	b, err := os.ReadFile(filepath.Join(dir, ".toc.json"))
	if err != nil {
		return nil, err
	}
	var t toc
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *toc) save(dir string) error {
	return writeJSONAtomic(filepath.Join(dir, ".toc.json"), t)
}

// segmentForIndex returns which delta segment owns pkgIndex, via binary
// search over the cumulative DeltaSectionPackageCount boundaries.
func (t *toc) segmentForIndex(pkgIndex int) int {
	lo, hi := 0, len(t.DeltaSectionPackageCount)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if t.DeltaSectionPackageCount[mid] <= pkgIndex {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// identityRecord is one entry in a partition's .identities.json.
type identityRecord struct {
	PkgIndex int                      `json:"pkgIndex"`
	Identity identity.PackageIdentity `json:"identity"`
}

func loadIdentities(dir, partition string) ([]identityRecord, error) {
	path := filepath.Join(dir, "identities", partition, ".identities.json")
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []identityRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func saveIdentities(dir, partition string, recs []identityRecord) error {
	path := filepath.Join(dir, "identities", partition, ".identities.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeJSONAtomic(path, recs)
}

func loadTypes(dir string) (map[int]string, error) {
	b, err := os.ReadFile(filepath.Join(dir, ".types.json"))
	if os.IsNotExist(err) {
		return make(map[int]string), nil
	}
	if err != nil {
		return nil, err
	}
	m := make(map[int]string)
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func saveTypes(dir string, m map[int]string) error {
	return writeJSONAtomic(filepath.Join(dir, ".types.json"), m)
}

// writeJSONAtomic marshals v and renames it into place so readers never
// observe a partially written file.
func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
