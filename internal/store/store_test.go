package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/store"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

func sampleXML(updateID uuid.UUID, revision int32) string {
	return fmt.Sprintf(`<Update>
  <UpdateIdentity UpdateID="%s" RevisionNumber="%d"/>
  <Properties UpdateType="Software"/>
  <LocalizedPropertiesCollection>
    <LocalizedProperties>
      <Language>en</Language>
      <Title>Sample</Title>
      <Description>desc</Description>
    </LocalizedProperties>
  </LocalizedPropertiesCollection>
</Update>`, updateID, revision)
}

func addSample(t *testing.T, s *store.Store, updateID uuid.UUID, revision int32) *xmlmeta.Package {
	t.Helper()
	id := identity.New("full", updateID, revision)
	pkg := &xmlmeta.Package{Identity: id, Kind: xmlmeta.KindSoftwareUpdate, Title: "Sample"}
	require.NoError(t, s.AddPackage(pkg, []byte(sampleXML(updateID, revision)), nil))
	return pkg
}

func TestOpenOrCreate_NewStoreIsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := store.OpenOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.IsReindexingRequired())
}

func TestFlush_EmptyStoreWritesTOC(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := store.OpenOrCreate(dir)
	require.NoError(t, err)
	require.NoError(t, s.Flush())

	data, err := os.ReadFile(filepath.Join(dir, ".toc.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"deltaSectionCount": 0`)

	reopened, err := store.OpenOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Count())
}

func TestAddPackage_DuplicateIdentityIsNoOp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := store.OpenOrCreate(dir)
	require.NoError(t, err)

	updateID := uuid.New()
	addSample(t, s, updateID, 1)
	assert.Equal(t, 1, s.Count())

	id := identity.New("full", updateID, 1)
	dup := &xmlmeta.Package{Identity: id}
	require.NoError(t, s.AddPackage(dup, []byte(sampleXML(updateID, 1)), nil))
	assert.Equal(t, 1, s.Count())
}

func TestFlushAndReopen_RoundTripsIdentitiesAndMetadata(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := store.OpenOrCreate(dir)
	require.NoError(t, err)

	updateID := uuid.New()
	addSample(t, s, updateID, 1)
	require.NoError(t, s.Flush())

	reopened, err := store.OpenOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())

	id := identity.New("full", updateID, 1)
	assert.True(t, reopened.ContainsPackage(id))

	pkg, err := reopened.GetPackage(id)
	require.NoError(t, err)
	assert.Equal(t, "Sample", pkg.Title)
}

func TestGetPackageByIndex_OutOfRange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := store.OpenOrCreate(dir)
	require.NoError(t, err)

	_, err = s.GetPackageByIndex(5)
	assert.Error(t, err)
}

func TestCopyTo_SkipsAlreadyPresentAndCopiesRest(t *testing.T) {
	t.Parallel()

	srcDir, dstDir := t.TempDir(), t.TempDir()
	src, err := store.OpenOrCreate(srcDir)
	require.NoError(t, err)
	dst, err := store.OpenOrCreate(dstDir)
	require.NoError(t, err)

	shared := uuid.New()
	addSample(t, src, shared, 1)
	addSample(t, dst, shared, 1)

	onlyInSrc := uuid.New()
	addSample(t, src, onlyInSrc, 1)

	require.NoError(t, src.CopyTo(context.Background(), dst, nil))

	assert.Equal(t, 2, dst.Count())
	assert.True(t, dst.ContainsPackage(identity.New("full", onlyInSrc, 1)))
}

func TestAddPackage_DerivesCategoryIDsFromKnownCategories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := store.OpenOrCreate(dir)
	require.NoError(t, err)

	categoryID := uuid.New()
	category := &xmlmeta.Package{
		Identity: identity.New("categories", categoryID, 1),
		Kind:     xmlmeta.KindProductCategory,
		Title:    "Windows",
	}
	require.NoError(t, s.AddPackage(category, []byte(sampleXML(categoryID, 1)), nil))

	updateID := uuid.New()
	updateXML := fmt.Sprintf(`<Update>
  <UpdateIdentity UpdateID="%s" RevisionNumber="1"/>
  <Properties UpdateType="Software"/>
  <LocalizedPropertiesCollection>
    <LocalizedProperties>
      <Language>en</Language>
      <Title>Update</Title>
    </LocalizedProperties>
  </LocalizedPropertiesCollection>
  <Relationships>
    <Prerequisites>
      <AtLeastOne IsCategory="true">
        <UpdateIdentity UpdateID="%s" RevisionNumber="1"/>
      </AtLeastOne>
    </Prerequisites>
  </Relationships>
</Update>`, updateID, categoryID)
	update := &xmlmeta.Package{
		Identity: identity.New("full", updateID, 1),
		Kind:     xmlmeta.KindSoftwareUpdate,
		Title:    "Update",
		Prereqs: []xmlmeta.Prerequisite{
			{Kind: xmlmeta.PrereqAtLeastOne, UpdateIDs: []identity.GUID{categoryID}, IsCategory: true},
		},
	}
	require.NoError(t, s.AddPackage(update, []byte(updateXML), nil))

	assert.Equal(t, []identity.GUID{categoryID}, update.CategoryIDs)

	got, err := s.GetPackage(identity.New("full", updateID, 1))
	require.NoError(t, err)
	assert.Equal(t, []identity.GUID{categoryID}, got.CategoryIDs)
}

func TestReIndex_RebuildsIndexContainer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := store.OpenOrCreate(dir)
	require.NoError(t, err)

	updateID := uuid.New()
	addSample(t, s, updateID, 1)
	require.NoError(t, s.Flush())

	var progressCalls []int
	require.NoError(t, s.ReIndex(func(done int) { progressCalls = append(progressCalls, done) }))
	assert.False(t, s.IsReindexingRequired())

	idx, err := s.IndexContainer().Get("full", "mu-titles")
	require.NoError(t, err)
	assert.NotNil(t, idx)
}
