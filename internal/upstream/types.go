// Package upstream implements the client half of the ServerSync protocol:
// DSS auth cookie exchange, server config discovery, paginated revision-ID
// queries and batched metadata fetch, and the expired-update revision
// probe. The SOAP envelope is plain encoding/xml over net/http; see
// DESIGN.md for why no SOAP library is involved.
package upstream

import (
	"time"

	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// RevisionID is one (UpdateID, Revision) pair as the upstream names it on
// the wire, ahead of being wrapped into a partition-scoped
// identity.PackageIdentity by the caller.
type RevisionID struct {
	UpdateID identity.GUID
	Revision int32
}

// ServerSyncFilter is the wire shape of a GetRevisionIdList/GetConfigData
// request's filter. GetConfig=true requests
// categories; false requests updates scoped by Products/Classifications.
type ServerSyncFilter struct {
	GetConfig       bool
	Anchor          string
	Products        []identity.GUID
	Classifications []identity.GUID
}

// RevisionIDList is the response to GetRevisionIdList: the set of new or
// changed revisions and a fresh continuation anchor.
type RevisionIDList struct {
	Anchor       string
	NewRevisions []RevisionID
}

// ConfigData is the subset of ServerSyncConfigData this client cares
// about: the batch ceiling every subsequent call must respect.
type ConfigData struct {
	MaxNumberOfUpdatesPerRequest int
	ProtocolVersion              string
}

// AuthPlugin is one entry from GetAuthConfig; DSS is the only plugin this
// client knows how to drive.
type AuthPlugin struct {
	ID         string
	ServiceURL string
}

// accessToken is the cached {authInfo, authCookie, accessCookie} triple
// from the auth exchange. Kept unexported: callers only see it
// through Client's auth machinery.
type accessToken struct {
	plugin       AuthPlugin
	authCookie   string
	accessCookie string
	expiration   time.Time
}

// expiringSoon reports whether the cached token's expiration is within the
// 2-minute refresh window.
func (t *accessToken) expiringSoon(now time.Time) bool {
	return t == nil || !now.Before(t.expiration.Add(-2*time.Minute))
}

// UpdateBlob is one fetched update's raw metadata, already decompressed if
// it arrived CAB-packed.
type UpdateBlob struct {
	ID  RevisionID
	XML []byte
}

// UpdateDataResult is the response to GetUpdateData: the requested
// updates' XML plus the URL table that applies to every file referenced by
// this batch.
type UpdateDataResult struct {
	Updates  []UpdateBlob
	URLTable xmlmeta.URLTable
}
