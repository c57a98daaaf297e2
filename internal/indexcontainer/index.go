// Package indexcontainer implements the bundled secondary-index archive:
// a single ZIP holding a table of contents
// plus one serialized entry per (partition, index name) pair.
package indexcontainer

import (
	"encoding/json"
)

// Index is one secondary index. Concrete indexes are either "simple"
// (pkgIndex -> single value) or "list" (key -> value slice) shaped; both
// satisfy this interface via (Un)MarshalBinary.
type Index interface {
	Name() string
	Version() int
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

// SimpleIndex maps a package index to a single value.
type SimpleIndex[V any] struct {
	name    string
	version int
	Data    map[int]V
}

func NewSimpleIndex[V any](name string, version int) *SimpleIndex[V] {
	return &SimpleIndex[V]{name: name, version: version, Data: make(map[int]V)}
}

func (s *SimpleIndex[V]) Name() string { return s.name }
func (s *SimpleIndex[V]) Version() int { return s.version }
func (s *SimpleIndex[V]) Get(pkgIndex int) (V, bool) {
	v, ok := s.Data[pkgIndex]
	return v, ok
}
func (s *SimpleIndex[V]) Set(pkgIndex int, v V) { s.Data[pkgIndex] = v }

func (s *SimpleIndex[V]) MarshalBinary() ([]byte, error) { return json.Marshal(s.Data) }
func (s *SimpleIndex[V]) UnmarshalBinary(b []byte) error { return json.Unmarshal(b, &s.Data) }

// ListIndex maps a key to a slice of values; used both for
// pkgIndex->value[] indexes and inverse GUID/identity->pkgIndex[] indexes.
type ListIndex[K comparable, V any] struct {
	name    string
	version int
	Data    map[K][]V
}

func NewListIndex[K comparable, V any](name string, version int) *ListIndex[K, V] {
	return &ListIndex[K, V]{name: name, version: version, Data: make(map[K][]V)}
}

func (l *ListIndex[K, V]) Name() string      { return l.name }
func (l *ListIndex[K, V]) Version() int      { return l.version }
func (l *ListIndex[K, V]) Get(key K) []V     { return l.Data[key] }
func (l *ListIndex[K, V]) Add(key K, v V)    { l.Data[key] = append(l.Data[key], v) }
func (l *ListIndex[K, V]) Set(key K, vs []V) { l.Data[key] = vs }

func (l *ListIndex[K, V]) MarshalBinary() ([]byte, error) { return json.Marshal(l.Data) }
func (l *ListIndex[K, V]) UnmarshalBinary(b []byte) error { return json.Unmarshal(b, &l.Data) }

// wireKey is the JSON-friendly form of a (partition, index name) pair
// recorded in the TOC.
type wireKey struct {
	Partition string `json:"partition"`
	Name      string `json:"name"`
	Version   int    `json:"version"`
}

// tocVersion is the container-level TOC format version; a TOC written by
// an incompatible build is flagged StatusBadTocVersion rather than parsed.
const tocVersion = 1

// wireToc is the serialized TOC: its own format version plus one wireKey
// per stored index entry.
type wireToc struct {
	Version int       `json:"version"`
	Entries []wireKey `json:"entries"`
}

// Status summarizes whether a loaded container can be trusted as-is.
type Status int

const (
	StatusValid Status = iota
	StatusCorrupt
	StatusMissingToc
	StatusBadTocVersion
	StatusUnknownIndexes
	StatusBadIndexVersion
	StatusMissingIndexes
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "Valid"
	case StatusCorrupt:
		return "Corrupt"
	case StatusMissingToc:
		return "MissingToc"
	case StatusBadTocVersion:
		return "BadTocVersion"
	case StatusUnknownIndexes:
		return "UnknownIndexes"
	case StatusBadIndexVersion:
		return "BadIndexVersion"
	case StatusMissingIndexes:
		return "MissingIndexes"
	default:
		return "Unknown"
	}
}
