package downstream_test

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wsuscatalog/wsuscatalog/internal/downstream"
	"github.com/wsuscatalog/wsuscatalog/internal/store"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

func soapWrap(inner string) string {
	return `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` + inner + `</soap:Body></soap:Envelope>`
}

func categoryXML(id uuid.UUID, title string) string {
	return fmt.Sprintf(`<Update><UpdateIdentity UpdateID="%s" RevisionNumber="1"/><Properties UpdateType="Category"/><HandlerSpecificData><CategoryInformation CategoryType="Product"/></HandlerSpecificData><LocalizedPropertiesCollection><LocalizedProperties><Language>en</Language><Title>%s</Title></LocalizedProperties></LocalizedPropertiesCollection></Update>`, id, title)
}

func softwareXML(id uuid.UUID, title string, prereq uuid.UUID, bundled *uuid.UUID, fileDigest string) string {
	bundledXML := ""
	if bundled != nil {
		bundledXML = fmt.Sprintf(`<BundledUpdates><UpdateIdentity UpdateID="%s" RevisionNumber="1"/></BundledUpdates>`, *bundled)
	}
	filesXML := ""
	if fileDigest != "" {
		filesXML = fmt.Sprintf(`<Files><File FileName="payload.cab" Size="10" Digest="%s" DigestAlgorithm="SHA256"/></Files>`, fileDigest)
	}
	return fmt.Sprintf(`<Update><UpdateIdentity UpdateID="%s" RevisionNumber="1"/><Properties UpdateType="Software"/><LocalizedPropertiesCollection><LocalizedProperties><Language>en</Language><Title>%s</Title></LocalizedProperties></LocalizedPropertiesCollection><Relationships><Prerequisites><UpdateIdentity UpdateID="%s" RevisionNumber="1"/></Prerequisites>%s</Relationships>%s</Update>`, id, title, prereq, bundledXML, filesXML)
}

// seedStore builds a store holding one product category, a bundling
// software update A (prerequisite on the category, bundles B), an
// unrelated-product software update B, and returns their ids.
func seedStore(t *testing.T, fileDigest string, urlTable xmlmeta.URLTable) (*store.Store, uuid.UUID, uuid.UUID, uuid.UUID) {
	t.Helper()
	st, err := store.OpenOrCreate(t.TempDir())
	require.NoError(t, err)

	catID := uuid.New()
	idA := uuid.New()
	idB := uuid.New()
	otherProduct := uuid.New()

	add := func(raw, partition string, urlTable xmlmeta.URLTable) {
		pkg, err := xmlmeta.Parse([]byte(raw), urlTable)
		require.NoError(t, err)
		pkg.Identity.Partition = partition
		require.NoError(t, st.AddPackage(pkg, []byte(raw), urlTable))
	}

	add(categoryXML(catID, "Product X"), "categories", nil)
	add(softwareXML(idA, "Update A", catID, &idB, fileDigest), "updates", urlTable)
	add(softwareXML(idB, "Update B", otherProduct, nil, ""), "updates", nil)

	require.NoError(t, st.Flush())
	return st, catID, idA, idB
}

func newTestServer(t *testing.T, st *store.Store) *downstream.Server {
	t.Helper()
	srv := downstream.NewServer(downstream.ServerSyncConfigData{
		MaxNumberOfUpdatesPerRequest: 100,
		ProtocolVersion:              "1.20.0.0",
	}, nil)
	require.NoError(t, srv.SetPackageStore(st))
	return srv
}

func soapPost(t *testing.T, h http.Handler, path, action, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("SOAPAction", action)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetRevisionIdListIncludesBundledUpdateOutsideFilter(t *testing.T) {
	st, catID, idA, idB := seedStore(t, "", nil)
	srv := newTestServer(t, st)

	body := soapWrap(fmt.Sprintf(`<GetRevisionIdList><filter><GetConfig>false</GetConfig><Categories><Id>%s</Id></Categories></filter></GetRevisionIdList>`, catID))
	rec := soapPost(t, srv.Handler(), downstream.ServerSyncPath, "GetRevisionIdList", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := rec.Body.String()
	require.Contains(t, resp, idA.String())
	require.Contains(t, resp, idB.String())
}

func TestGetRevisionIdListEmptyFilterMatchesNothing(t *testing.T) {
	st, _, idA, idB := seedStore(t, "", nil)
	srv := newTestServer(t, st)

	body := soapWrap(`<GetRevisionIdList><filter><GetConfig>false</GetConfig></filter></GetRevisionIdList>`)
	rec := soapPost(t, srv.Handler(), downstream.ServerSyncPath, "GetRevisionIdList", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := rec.Body.String()
	require.NotContains(t, resp, idA.String())
	require.NotContains(t, resp, idB.String())
}

func TestGetRevisionIdListGetConfigListsCategories(t *testing.T) {
	st, catID, _, _ := seedStore(t, "", nil)
	srv := newTestServer(t, st)

	body := soapWrap(`<GetRevisionIdList><filter><GetConfig>true</GetConfig></filter></GetRevisionIdList>`)
	rec := soapPost(t, srv.Handler(), downstream.ServerSyncPath, "GetRevisionIdList", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), catID.String())
}

func TestGetUpdateDataReturnsRawXMLAndFileURLs(t *testing.T) {
	digest := base64.StdEncoding.EncodeToString([]byte("payload-bytes"))
	urlTable := xmlmeta.URLTable{digest: {MU: "http://mu.example/payload.cab", USS: "http://uss.example/payload.cab"}}
	st, _, idA, idB := seedStore(t, digest, urlTable)
	srv := newTestServer(t, st)

	body := soapWrap(fmt.Sprintf(`<GetUpdateData><updateIds><UpdateIdentity><UpdateID>%s</UpdateID><RevisionNumber>1</RevisionNumber></UpdateIdentity><UpdateIdentity><UpdateID>%s</UpdateID><RevisionNumber>1</RevisionNumber></UpdateIdentity></updateIds></GetUpdateData>`, idA, idB))
	rec := soapPost(t, srv.Handler(), downstream.ServerSyncPath, "GetUpdateData", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := rec.Body.String()
	require.Contains(t, resp, idA.String())
	require.Contains(t, resp, idB.String())
	require.Contains(t, resp, "http://mu.example/payload.cab")
	require.Contains(t, resp, "http://uss.example/payload.cab")
	require.Equal(t, 1, strings.Count(resp, "<FileUrl>"))
}

func TestGetUpdateDataRequestTooLargeReturnsNullBody(t *testing.T) {
	st, _, idA, _ := seedStore(t, "", nil)
	srv := downstream.NewServer(downstream.ServerSyncConfigData{MaxNumberOfUpdatesPerRequest: 1}, nil)
	require.NoError(t, srv.SetPackageStore(st))

	body := soapWrap(fmt.Sprintf(`<GetUpdateData><updateIds><UpdateIdentity><UpdateID>%s</UpdateID><RevisionNumber>1</RevisionNumber></UpdateIdentity><UpdateIdentity><UpdateID>%s</UpdateID><RevisionNumber>1</RevisionNumber></UpdateIdentity></updateIds></GetUpdateData>`, idA, uuid.New()))
	rec := soapPost(t, srv.Handler(), downstream.ServerSyncPath, "GetUpdateData", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := rec.Body.String()
	require.NotContains(t, resp, "GetUpdateDataResponse")
}

func TestGetAuthConfigReturnsDssTargeting(t *testing.T) {
	st, _, _, _ := seedStore(t, "", nil)
	srv := newTestServer(t, st)

	rec := soapPost(t, srv.Handler(), downstream.ServerSyncPath, "GetAuthConfig", soapWrap(`<GetAuthConfig/>`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "DssTargeting")
}

func TestHandleContentWithoutStoreIs404(t *testing.T) {
	st, _, _, _ := seedStore(t, "", nil)
	srv := newTestServer(t, st)

	req := httptest.NewRequest(http.MethodGet, downstream.ContentPrefix+"ab/deadbeef/deadbeef.cab", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
