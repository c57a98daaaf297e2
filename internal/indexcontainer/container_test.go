package indexcontainer_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/indexcontainer"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

func samplePackage() *xmlmeta.Package {
	catID := identity.GUID(uuid.New())
	return &xmlmeta.Package{
		Identity:    identity.New("full", identity.GUID(uuid.New()), 1),
		Kind:        xmlmeta.KindSoftwareUpdate,
		Title:       "Sample Update",
		Description: "a test update",
		CategoryIDs: []identity.GUID{catID},
		Prereqs: []xmlmeta.Prerequisite{
			{Kind: xmlmeta.PrereqAtLeastOne, UpdateIDs: []identity.GUID{catID}, IsCategory: true},
		},
		KBArticleID:       "KB123456",
		SupersededUpdates: []identity.GUID{identity.GUID(uuid.New())},
	}
}

func TestContainer_RoundTrip(t *testing.T) {
	t.Parallel()

	c := indexcontainer.New()
	pkg := samplePackage()
	require.NoError(t, c.IndexPackage("full", 0, pkg))

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	reopened, err := indexcontainer.Open(zr)
	require.NoError(t, err)
	assert.Equal(t, indexcontainer.StatusValid, reopened.Status())

	titles, err := reopened.Get("full", "mu-titles")
	require.NoError(t, err)
	si, ok := titles.(*indexcontainer.SimpleIndex[string])
	require.True(t, ok)
	got, ok := si.Get(0)
	require.True(t, ok)
	assert.Equal(t, "Sample Update", got)

	kb, err := reopened.Get("full", "mu-kbarticle")
	require.NoError(t, err)
	kbIdx := kb.(*indexcontainer.SimpleIndex[string])
	v, ok := kbIdx.Get(0)
	require.True(t, ok)
	assert.Equal(t, "KB123456", v)
}

func TestContainer_PrerequisiteSentinelMarksCategoryGroup(t *testing.T) {
	t.Parallel()

	c := indexcontainer.New()
	pkg := samplePackage()
	require.NoError(t, c.IndexPackage("full", 0, pkg))

	idx, err := c.Get("full", "mu-prerequisites")
	require.NoError(t, err)
	si := idx.(*indexcontainer.SimpleIndex[[][]identity.GUID])
	groups, ok := si.Get(0)
	require.True(t, ok)
	require.Len(t, groups, 1)
	assert.Equal(t, identity.Nil, groups[0][0])
}

func TestContainer_InverseIndexesPopulate(t *testing.T) {
	t.Parallel()

	c := indexcontainer.New()
	target := identity.New("full", identity.GUID(uuid.New()), 1)
	bundle := samplePackage()
	bundle.BundledUpdates = []identity.PackageIdentity{target}
	require.NoError(t, c.IndexPackage("full", 1, bundle))

	idx, err := c.Get("full", "mu-bundled-with")
	require.NoError(t, err)
	li := idx.(*indexcontainer.ListIndex[identity.PackageIdentity, int])
	assert.Equal(t, []int{1}, li.Get(target))

	supersededID := bundle.SupersededUpdates[0]
	supIdx, err := c.Get("full", "mu-is-superseded")
	require.NoError(t, err)
	supLi := supIdx.(*indexcontainer.ListIndex[identity.GUID, int])
	assert.Equal(t, []int{1}, supLi.Get(supersededID))
}

func TestOpen_MissingTocIsFlagged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("full/mu-titles")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"0":"x"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	c, err := indexcontainer.Open(zr)
	require.NoError(t, err)
	assert.Equal(t, indexcontainer.StatusMissingToc, c.Status())
}

func TestOpen_CorruptTocIsFlagged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(".toc")
	require.NoError(t, err)
	_, err = w.Write([]byte("not json"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	c, err := indexcontainer.Open(zr)
	require.NoError(t, err)
	assert.Equal(t, indexcontainer.StatusCorrupt, c.Status())
}

func TestOpen_BadTocVersionIsFlagged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(".toc")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"version":99,"entries":[]}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	c, err := indexcontainer.Open(zr)
	require.NoError(t, err)
	assert.Equal(t, indexcontainer.StatusBadTocVersion, c.Status())
}

func TestOpen_UnknownIndexNameIsFlagged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	toc := `{"version":1,"entries":[{"partition":"full","name":"mu-nonexistent","version":1}]}`
	w, err := zw.Create(".toc")
	require.NoError(t, err)
	_, err = w.Write([]byte(toc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	c, err := indexcontainer.Open(zr)
	require.NoError(t, err)
	assert.Equal(t, indexcontainer.StatusUnknownIndexes, c.Status())
}

func TestMissingFor_ListsUnpopulatedIndexes(t *testing.T) {
	t.Parallel()

	c := indexcontainer.New()
	missing := c.MissingFor("full")
	assert.Contains(t, missing, "mu-titles")
	assert.Contains(t, missing, "mu-files")
}
