// Package identity defines the compact comparable keys the rest of the
// catalog is built around: an update's (UpdateID, Revision) pair and the
// content digests used to address downloaded payloads.
package identity

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// GUID is the wire identity of an update, category or detectoid. WSUS
// identities are 128-bit GUIDs; google/uuid gives us comparison, string
// round-tripping and a zero value for free.
type GUID = uuid.UUID

// Nil is the all-zero GUID, used as the sentinel that marks a category
// group inside a serialized prerequisite list (see indexcontainer).
var Nil = uuid.Nil

// PackageIdentity is the sort key and dedup key for every package in the
// store: a partition-scoped (UpdateID, Revision) pair.
type PackageIdentity struct {
	Partition string
	UpdateID  GUID
	Revision  int32
}

// GUIDFromString parses a GUID's canonical string form, as found on the
// wire in SOAP requests/responses.
func GUIDFromString(s string) (GUID, error) {
	return uuid.Parse(s)
}

// New builds an identity for a partition.
func New(partition string, updateID GUID, revision int32) PackageIdentity {
	return PackageIdentity{Partition: partition, UpdateID: updateID, Revision: revision}
}

// Key returns the raw GUID bytes followed by the big-endian revision —
// the canonical sort key for packages. Two identities
// compare equal under this key iff UpdateID and Revision both match;
// Partition is not part of the sort key, only of the open ID below.
func (id PackageIdentity) Key() [20]byte {
	var k [20]byte
	copy(k[:16], id.UpdateID[:])
	binary.BigEndian.PutUint32(k[16:], uint32(id.Revision))
	return k
}

// Less orders identities by their sort key: raw GUID bytes, then revision.
func (id PackageIdentity) Less(other PackageIdentity) bool {
	a, b := id.Key(), other.Key()
	return bytes.Compare(a[:], b[:]) < 0
}

// Equal reports whether all three fields match.
func (id PackageIdentity) Equal(other PackageIdentity) bool {
	return id.Partition == other.Partition && id.UpdateID == other.UpdateID && id.Revision == other.Revision
}

// OpenID is a partition-prefixed byte sequence used for cross-partition
// uniqueness checks (two partitions may otherwise reuse the same UpdateID).
func (id PackageIdentity) OpenID() []byte {
	k := id.Key()
	out := make([]byte, 0, len(id.Partition)+1+len(k))
	out = append(out, []byte(id.Partition)...)
	out = append(out, 0)
	out = append(out, k[:]...)
	return out
}

// String renders an identity for logging, e.g. "software/3f2504e0-...@7".
func (id PackageIdentity) String() string {
	return fmt.Sprintf("%s/%s@%d", id.Partition, id.UpdateID, id.Revision)
}

// ByKey sorts a slice of identities by their canonical sort key, matching
// the order a raw-GUID-bytes-then-revision sort would produce.
func ByKey(ids []PackageIdentity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}
