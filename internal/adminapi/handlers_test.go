package adminapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsuscatalog/wsuscatalog/internal/downstream"
	"github.com/wsuscatalog/wsuscatalog/internal/store"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

func categoryXML(id uuid.UUID, title string) string {
	return fmt.Sprintf(`<Update><UpdateIdentity UpdateID="%s" RevisionNumber="1"/><Properties UpdateType="Category"/><HandlerSpecificData><CategoryInformation CategoryType="Product"/></HandlerSpecificData><LocalizedPropertiesCollection><LocalizedProperties><Language>en</Language><Title>%s</Title></LocalizedProperties></LocalizedPropertiesCollection></Update>`, id, title)
}

func softwareXML(id, prereq uuid.UUID, title string) string {
	return fmt.Sprintf(`<Update><UpdateIdentity UpdateID="%s" RevisionNumber="1"/><Properties UpdateType="Software"/><LocalizedPropertiesCollection><LocalizedProperties><Language>en</Language><Title>%s</Title></LocalizedProperties></LocalizedPropertiesCollection><Relationships><Prerequisites><AtLeastOne IsCategory="true"><UpdateIdentity UpdateID="%s" RevisionNumber="1"/></AtLeastOne></Prerequisites></Relationships></Update>`, id, title, prereq)
}

func seedAdminStore(t *testing.T) (*store.Store, uuid.UUID, uuid.UUID) {
	t.Helper()
	st, err := store.OpenOrCreate(t.TempDir())
	require.NoError(t, err)

	catID := uuid.New()
	updateID := uuid.New()

	catPkg, err := xmlmeta.Parse([]byte(categoryXML(catID, "Product X")), nil)
	require.NoError(t, err)
	catPkg.Identity.Partition = "categories"
	require.NoError(t, st.AddPackage(catPkg, []byte(categoryXML(catID, "Product X")), nil))

	raw := softwareXML(updateID, catID, "Sample Update")
	pkg, err := xmlmeta.Parse([]byte(raw), nil)
	require.NoError(t, err)
	pkg.Identity.Partition = "updates"
	require.NoError(t, st.AddPackage(pkg, []byte(raw), nil))

	return st, catID, updateID
}

func TestHandleUpdates_FiltersByProduct(t *testing.T) {
	st, catID, updateID := seedAdminStore(t)
	s := &Server{store: st}

	req := httptest.NewRequest(http.MethodGet, "/admin/updates?product="+catID.String(), nil)
	rec := httptest.NewRecorder()
	s.handleUpdates(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), updateID.String())
}

func TestHandleUpdates_UnknownProductExcludesEverything(t *testing.T) {
	st, _, _ := seedAdminStore(t)
	s := &Server{store: st}

	req := httptest.NewRequest(http.MethodGet, "/admin/updates?product="+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	s.handleUpdates(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestHandleUpdates_RejectsNonGET(t *testing.T) {
	st, _, _ := seedAdminStore(t)
	s := &Server{store: st}

	req := httptest.NewRequest(http.MethodPost, "/admin/updates", nil)
	rec := httptest.NewRecorder()
	s.handleUpdates(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleDriverMatch_NoHardwareMatchReturnsFalse(t *testing.T) {
	st, _, _ := seedAdminStore(t)
	ds := downstream.NewServer(downstream.ServerSyncConfigData{MaxNumberOfUpdatesPerRequest: 100}, nil)
	require.NoError(t, ds.SetPackageStore(st))
	s := &Server{store: st, downstream: ds}

	req := httptest.NewRequest(http.MethodGet, "/admin/driver-match?hardwareId=pci-ven_1234", nil)
	rec := httptest.NewRecorder()
	s.handleDriverMatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matched":false`)
}
