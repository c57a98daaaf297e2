package indexcontainer

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

const tocEntryName = ".toc"

// entryName joins a partition and index name into the ZIP entry name
// used on disk.
func entryName(partition, indexName string) string {
	return partition + "/" + indexName
}

// Container is the bundled secondary-index archive for every partition a
// package store holds. Indexes are deserialized lazily on first lookup;
// Status reflects whatever was learned the last time Open ran.
type Container struct {
	mu     sync.RWMutex
	loaded map[string]map[string]Index // partition -> name -> Index
	toc    []wireKey
	raw    map[string][]byte // entryName -> unread bytes, populated by Open
	status Status
}

// New returns an empty container with nothing loaded, suitable for a
// brand-new package store that hasn't been saved yet.
func New() *Container {
	return &Container{
		loaded: make(map[string]map[string]Index),
		status: StatusValid,
	}
}

// Status reports the outcome of the most recent Open call (StatusValid for
// a container built fresh via New).
func (c *Container) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Open reads a previously saved container from r. A missing or corrupt TOC,
// an index bearing an unexpected version, or a TOC naming an index this
// build doesn't recognize all leave the container usable but flagged via
// Status, feeding the store's IsReindexingRequired flag;
// Open never returns an error for these conditions, only for a ZIP it
// cannot read as a ZIP at all.
func Open(r *zip.Reader) (*Container, error) {
	c := New()
	c.raw = make(map[string][]byte, len(r.File))

	var tocBytes []byte
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("indexcontainer: open entry %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("indexcontainer: read entry %s: %w", f.Name, err)
		}
		if f.Name == tocEntryName {
			tocBytes = b
			continue
		}
		c.raw[f.Name] = b
	}

	if tocBytes == nil {
		c.status = StatusMissingToc
		return c, nil
	}
	var toc wireToc
	if err := json.Unmarshal(tocBytes, &toc); err != nil {
		c.status = StatusCorrupt
		return c, nil
	}
	if toc.Version != tocVersion {
		c.status = StatusBadTocVersion
		return c, nil
	}
	c.toc = toc.Entries

	seenPartitions := make(map[string]map[string]bool)
	for _, k := range toc.Entries {
		def, ok := catalogue[k.Name]
		if !ok {
			c.status = StatusUnknownIndexes
			continue
		}
		if def.Version != k.Version {
			c.status = StatusBadIndexVersion
			continue
		}
		if _, ok := c.raw[entryName(k.Partition, k.Name)]; !ok {
			c.status = StatusMissingIndexes
			continue
		}
		if seenPartitions[k.Partition] == nil {
			seenPartitions[k.Partition] = make(map[string]bool)
		}
		seenPartitions[k.Partition][k.Name] = true
	}

	return c, nil
}

// get lazily deserializes and returns the index for (partition, name),
// constructing an empty one if the container has nothing stored for it.
func (c *Container) get(partition, name string) (Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.loaded[partition]; ok {
		if idx, ok := p[name]; ok {
			return idx, nil
		}
	}

	def, ok := catalogue[name]
	if !ok {
		return nil, fmt.Errorf("indexcontainer: unknown index %q", name)
	}
	idx := def.New()

	if raw, ok := c.raw[entryName(partition, name)]; ok {
		if err := idx.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("indexcontainer: unmarshal %s/%s: %w", partition, name, err)
		}
	}

	if c.loaded[partition] == nil {
		c.loaded[partition] = make(map[string]Index)
	}
	c.loaded[partition][name] = idx
	return idx, nil
}

// Get returns the loaded index for (partition, name) as its generic type;
// callers type-assert the result, e.g. idx.(*SimpleIndex[string]).
func (c *Container) Get(partition, name string) (Index, error) {
	return c.get(partition, name)
}

// IndexPackage fans pkg out across every catalogue definition applicable
// to its Kind, lazily instantiating each partition's index instances on
// first use.
func (c *Container) IndexPackage(partition string, pkgIndex int, pkg *xmlmeta.Package) error {
	for name, def := range catalogue {
		if !def.AppliesTo(pkg.Kind) {
			continue
		}
		idx, err := c.get(partition, name)
		if err != nil {
			return err
		}
		c.mu.Lock()
		def.Update(idx, pkgIndex, pkg)
		c.mu.Unlock()
	}
	return nil
}

// MissingFor compares a partition's currently-loaded index names against
// the indexes applicable to kinds actually relevant (the full catalogue by
// default), returning names that have never been populated. Used by the
// package store to decide whether a reindex is required.
func (c *Container) MissingFor(partition string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	present := c.loaded[partition]
	var missing []string
	for name := range catalogue {
		if present == nil || present[name] == nil {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Save serializes every currently loaded index into its own ZIP entry,
// then writes the TOC last.
func (c *Container) Save(w io.Writer) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	zw := zip.NewWriter(w)

	var toc []wireKey
	partitions := make([]string, 0, len(c.loaded))
	for p := range c.loaded {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)

	for _, partition := range partitions {
		names := make([]string, 0, len(c.loaded[partition]))
		for name := range c.loaded[partition] {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			idx := c.loaded[partition][name]
			b, err := idx.MarshalBinary()
			if err != nil {
				return fmt.Errorf("indexcontainer: marshal %s/%s: %w", partition, name, err)
			}
			fw, err := zw.Create(entryName(partition, name))
			if err != nil {
				return fmt.Errorf("indexcontainer: create entry %s/%s: %w", partition, name, err)
			}
			if _, err := fw.Write(b); err != nil {
				return fmt.Errorf("indexcontainer: write entry %s/%s: %w", partition, name, err)
			}
			toc = append(toc, wireKey{Partition: partition, Name: name, Version: idx.Version()})
		}
	}

	tocBytes, err := json.Marshal(wireToc{Version: tocVersion, Entries: toc})
	if err != nil {
		return fmt.Errorf("indexcontainer: marshal toc: %w", err)
	}
	fw, err := zw.Create(tocEntryName)
	if err != nil {
		return fmt.Errorf("indexcontainer: create toc entry: %w", err)
	}
	if _, err := fw.Write(tocBytes); err != nil {
		return fmt.Errorf("indexcontainer: write toc entry: %w", err)
	}

	return zw.Close()
}

// ErrCorrupt is returned by callers that choose to reject a container
// outright rather than tolerate a degraded Status.
var ErrCorrupt = errors.New("indexcontainer: corrupt container")

// OpenFile is a convenience wrapper around Open for callers holding a file
// (or any io.ReaderAt) and its size rather than an already-built
// *zip.Reader.
func OpenFile(r io.ReaderAt, size int64) (*Container, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("indexcontainer: open zip: %w", err)
	}
	return Open(zr)
}
