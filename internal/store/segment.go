package store

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/wsuscatalog/wsuscatalog/internal/catalogerr"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// segmentEntry is one package's contribution to a delta segment: the raw
// XML blob plus a sidecar URL table for its files.
type segmentEntry struct {
	pkgIndex int
	rawXML   []byte
	urlTable xmlmeta.URLTable
}

// openSegment holds the entries appended to the current (not-yet-flushed)
// delta segment. Segments are append-only in memory and only written to
// disk as a single ZIP on Flush, since archive/zip has no streaming-append
// mode for an already-closed archive.
type openSegment struct {
	index   int
	entries []segmentEntry
}

func (s *openSegment) append(pkgIndex int, rawXML []byte, urlTable xmlmeta.URLTable) {
	s.entries = append(s.entries, segmentEntry{pkgIndex: pkgIndex, rawXML: rawXML, urlTable: urlTable})
}

func (s *openSegment) path(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("%d.zip", s.index))
}

// flush writes every accumulated entry into "<n>.zip", ordered by
// pkgIndex so package order within the segment equals insertion order.
func (s *openSegment) flush(dir string) error {
	if len(s.entries) == 0 {
		return nil
	}
	sort.Slice(s.entries, func(i, j int) bool { return s.entries[i].pkgIndex < s.entries[j].pkgIndex })

	tmp := s.path(dir) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("store: create segment %d: %w", s.index, err)
	}
	zw := zip.NewWriter(f)
	for _, e := range s.entries {
		xmlName := fmt.Sprintf("%d.xml", e.pkgIndex)
		xw, err := zw.Create(xmlName)
		if err != nil {
			return fmt.Errorf("store: create segment entry %s: %w", xmlName, err)
		}
		if _, err := xw.Write(e.rawXML); err != nil {
			return fmt.Errorf("store: write segment entry %s: %w", xmlName, err)
		}

		filesJSON, err := json.Marshal(e.urlTable)
		if err != nil {
			return fmt.Errorf("store: marshal url table for pkgIndex %d: %w", e.pkgIndex, err)
		}
		filesName := fmt.Sprintf("%d.files.json", e.pkgIndex)
		fw, err := zw.Create(filesName)
		if err != nil {
			return fmt.Errorf("store: create segment entry %s: %w", filesName, err)
		}
		if _, err := fw.Write(filesJSON); err != nil {
			return fmt.Errorf("store: write segment entry %s: %w", filesName, err)
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("store: close segment zip %d: %w", s.index, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close segment file %d: %w", s.index, err)
	}
	return os.Rename(tmp, s.path(dir))
}

// readFromSegment reads pkgIndex's raw XML and URL table out of an
// already-flushed segment file on disk.
func readFromSegment(dir string, segIndex, pkgIndex int) ([]byte, xmlmeta.URLTable, error) {
	path := filepath.Join(dir, fmt.Sprintf("%d.zip", segIndex))
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("store: open segment %d: %w", segIndex, err)
	}
	defer zr.Close()

	var rawXML []byte
	var urlTable xmlmeta.URLTable
	xmlName := fmt.Sprintf("%d.xml", pkgIndex)
	filesName := fmt.Sprintf("%d.files.json", pkgIndex)
	for _, f := range zr.File {
		switch f.Name {
		case xmlName:
			rawXML, err = readZipEntry(f)
		case filesName:
			var b []byte
			b, err = readZipEntry(f)
			if err == nil {
				err = json.Unmarshal(b, &urlTable)
			}
		}
		if err != nil {
			return nil, nil, fmt.Errorf("store: read segment %d entry for pkgIndex %d: %w", segIndex, pkgIndex, err)
		}
	}
	if rawXML == nil {
		return nil, nil, fmt.Errorf("store: pkgIndex %d in segment %d: %w", pkgIndex, segIndex, catalogerr.ErrMissingMetadata)
	}
	return rawXML, urlTable, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
