package downstream

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"

	"github.com/wsuscatalog/wsuscatalog/internal/catalogerr"
	"github.com/wsuscatalog/wsuscatalog/internal/contentstore"
	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// --- GetAuthConfig -------------------------------------------------------

type wireAuthPlugin struct {
	ID         string `xml:"Id"`
	ServiceURL string `xml:"ServiceUrl"`
}

type getAuthConfigResponse struct {
	XMLName xml.Name         `xml:"GetAuthConfigResponse"`
	Plugins []wireAuthPlugin `xml:"GetAuthConfigResult>AuthPlugInConfig"`
}

// getAuthConfig returns the canned DssTargeting plugin every downstream
// client is pointed at.
func (srv *Server) getAuthConfig(w http.ResponseWriter, r *http.Request) {
	writeSoapBody(w, getAuthConfigResponse{
		Plugins: []wireAuthPlugin{{ID: "DssTargeting", ServiceURL: DssPath}},
	})
}

// --- GetConfigData -------------------------------------------------------

type getConfigDataResponse struct {
	XMLName         xml.Name `xml:"GetConfigDataResponse"`
	MaxUpdates      int      `xml:"GetConfigDataResult>MaxNumberOfUpdatesPerRequest"`
	ProtocolVersion string   `xml:"GetConfigDataResult>ProtocolVersion"`
	CatalogOnlySync bool     `xml:"GetConfigDataResult>CatalogOnlySync"`
}

// getConfigData returns the service's cached config, set at construction
// from the service-config-json input.
func (srv *Server) getConfigData(w http.ResponseWriter, r *http.Request) {
	srv.mu.RLock()
	cfg := srv.cfg
	srv.mu.RUnlock()

	writeSoapBody(w, getConfigDataResponse{
		MaxUpdates:      cfg.MaxNumberOfUpdatesPerRequest,
		ProtocolVersion: cfg.ProtocolVersion,
		CatalogOnlySync: cfg.CatalogOnlySync,
	})
}

// --- GetRevisionIdList ---------------------------------------------------

type wireFilter struct {
	GetConfig       bool     `xml:"GetConfig"`
	Anchor          string   `xml:"Anchor"`
	Products        []string `xml:"Categories>Id"`
	Classifications []string `xml:"Classifications>Id"`
}

type getRevisionIdListRequest struct {
	XMLName xml.Name   `xml:"GetRevisionIdList"`
	Filter  wireFilter `xml:"filter"`
}

type wireRevisionID struct {
	UpdateID string `xml:"UpdateID"`
	Revision int32  `xml:"RevisionNumber"`
}

type getRevisionIdListResponse struct {
	XMLName      xml.Name         `xml:"GetRevisionIdListResponse"`
	Anchor       string           `xml:"GetRevisionIdListResult>Anchor"`
	NewRevisions []wireRevisionID `xml:"GetRevisionIdListResult>NewRevisions>RevisionIdAndTime"`
}

// getRevisionIdList returns every category identity under
// filter.GetConfig, or the product/classification intersection plus one
// level of bundle closure otherwise.
func (srv *Server) getRevisionIdList(w http.ResponseWriter, r *http.Request) {
	var req getRevisionIdListRequest
	if err := decodeRequest(r, &req); err != nil {
		writeSoapFault(w, http.StatusBadRequest, err.Error())
		return
	}

	srv.mu.RLock()
	defer srv.mu.RUnlock()

	var revisions []wireRevisionID
	if req.Filter.GetConfig {
		for _, cat := range srv.state.categories {
			revisions = append(revisions, wireRevisionID{UpdateID: cat.Identity.UpdateID.String(), Revision: cat.Identity.Revision})
		}
	} else {
		matched, err := srv.resolveUpdateFilter(req.Filter)
		if err != nil {
			writeSoapFault(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, pkg := range matched {
			revisions = append(revisions, wireRevisionID{UpdateID: pkg.Identity.UpdateID.String(), Revision: pkg.Identity.Revision})
		}
	}

	// An opaque continuation token built from the revision count; this
	// server always returns one rather than the null some WSUSSS upstreams
	// use.
	writeSoapBody(w, getRevisionIdListResponse{
		Anchor:       fmt.Sprintf("anchor-%d", len(revisions)),
		NewRevisions: revisions,
	})
}

func (srv *Server) resolveUpdateFilter(f wireFilter) ([]*xmlmeta.Package, error) {
	products, err := parseGUIDs(f.Products)
	if err != nil {
		return nil, err
	}
	classifications, err := parseGUIDs(f.Classifications)
	if err != nil {
		return nil, err
	}

	productMatches := unionIndex(srv.state.productsIndex, products)
	classificationMatches := unionIndex(srv.state.classifications, classifications)

	var matched []*xmlmeta.Package
	switch {
	case len(products) == 0 && len(classifications) == 0:
		// Empty filter matches nothing upstream-side too (internal/sources);
		// mirrored here for the same reason.
	case len(products) == 0:
		matched = classificationMatches
	case len(classifications) == 0:
		matched = productMatches
	default:
		matched = intersectRefs(productMatches, classificationMatches)
	}

	return addBundleClosure(matched, srv.state.byUpdateID), nil
}

func parseGUIDs(ss []string) ([]identity.GUID, error) {
	out := make([]identity.GUID, 0, len(ss))
	for _, s := range ss {
		id, err := identity.GUIDFromString(s)
		if err != nil {
			return nil, fmt.Errorf("downstream: bad GUID %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// --- GetUpdateData ---------------------------------------------------

type getUpdateDataRequest struct {
	XMLName     xml.Name         `xml:"GetUpdateData"`
	RevisionIDs []wireRevisionID `xml:"updateIds>UpdateIdentity"`
}

type wireUpdateXML struct {
	UpdateID     string `xml:"ID"`
	Revision     int32  `xml:"RevisionNumber"`
	XMLData      []byte `xml:"Xml"`
	IsCompressed bool   `xml:"IsCompressed"`
}

type wireFileURL struct {
	Digest string `xml:"FileDigest"`
	MU     string `xml:"MUUrl"`
	USS    string `xml:"UssUrl"`
}

type getUpdateDataResponse struct {
	XMLName  xml.Name        `xml:"GetUpdateDataResponse"`
	Updates  []wireUpdateXML `xml:"GetUpdateDataResult>Updates>UpdateXml"`
	FileURLs []wireFileURL   `xml:"GetUpdateDataResult>FileUrls>FileUrl"`
}

// getUpdateData streams raw metadata for each requested id and accumulates
// a deduplicated file URL table with any file's USS URL rewritten to this
// server's content endpoint. A request naming more ids
// than MaxNumberOfUpdatesPerRequest gets a null body, not a fault,
// mirroring legacy WSUS behavior.
func (srv *Server) getUpdateData(w http.ResponseWriter, r *http.Request) {
	var req getUpdateDataRequest
	if err := decodeRequest(r, &req); err != nil {
		writeSoapFault(w, http.StatusBadRequest, err.Error())
		return
	}

	srv.mu.RLock()
	maxPerRequest := srv.cfg.MaxNumberOfUpdatesPerRequest
	byUpdateID := srv.state.byUpdateID
	st := srv.store
	content := srv.content
	srv.mu.RUnlock()

	if maxPerRequest > 0 && len(req.RevisionIDs) > maxPerRequest {
		writeNullSoapBody(w)
		return
	}

	resp := getUpdateDataResponse{}
	seenDigest := make(map[string]bool)

	for _, wid := range req.RevisionIDs {
		updateID, err := identity.GUIDFromString(wid.UpdateID)
		if err != nil {
			writeSoapFault(w, http.StatusBadRequest, err.Error())
			return
		}
		ref, ok := byUpdateID[updateID]
		if !ok {
			continue
		}

		id := identity.New(ref.Identity.Partition, updateID, ref.Identity.Revision)
		pkg, err := st.GetPackage(id)
		if err != nil {
			if isKeyNotFound(err) {
				continue
			}
			writeSoapFault(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp.Updates = append(resp.Updates, wireUpdateXML{
			UpdateID: updateID.String(),
			Revision: pkg.Identity.Revision,
			XMLData:  pkg.RawBytes(),
		})

		for _, file := range pkg.Files {
			key := file.DigestKey()
			if key == "" || seenDigest[key] {
				continue
			}
			seenDigest[key] = true

			uss := file.URLs.USS
			if content != nil {
				if rewritten, err := rewriteUSS(file); err == nil {
					uss = rewritten
				}
			}
			resp.FileURLs = append(resp.FileURLs, wireFileURL{
				Digest: key,
				MU:     file.URLs.MU,
				USS:    uss,
			})
		}
	}

	writeSoapBody(w, resp)
}

func isKeyNotFound(err error) bool {
	return err != nil && errors.Is(err, catalogerr.ErrKeyNotFound)
}

func rewriteUSS(f xmlmeta.ContentFile) (string, error) {
	shard, err := contentstore.Shard(f)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(f.PrimaryDigest.Base64)
	if err != nil {
		return "", err
	}
	return ContentPrefix[1:] + shard + "/" + hex.EncodeToString(raw), nil
}
