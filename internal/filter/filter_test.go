package filter_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/wsuscatalog/wsuscatalog/internal/filter"
	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

func pkg(id uuid.UUID, title string, categories ...identity.GUID) *xmlmeta.Package {
	return &xmlmeta.Package{
		Identity:    identity.New("updates", id, 1),
		Kind:        xmlmeta.KindSoftwareUpdate,
		Title:       title,
		CategoryIDs: categories,
	}
}

// TestApplySupersededFilter checks the superseded filter: given
// {X, Y supersedes X} and SkipSuperseded=true, only Y survives.
func TestApplySupersededFilter(t *testing.T) {
	x := pkg(uuid.New(), "X")
	y := pkg(uuid.New(), "Y")
	y.SupersededUpdates = []identity.GUID{x.Identity.UpdateID}

	out := filter.Apply([]*xmlmeta.Package{x, y}, filter.Query{SkipSuperseded: true})

	assert.Len(t, out, 1)
	assert.Equal(t, "Y", out[0].Title)
}

// TestApplyPerPkgSuperseded: Y supersedes X but Y's title doesn't match
// the query, so the pool-wide mode never sees Y and keeps X; the
// per-package mode judges X against the full pool and drops it.
func TestApplyPerPkgSuperseded(t *testing.T) {
	x := pkg(uuid.New(), "X old")
	y := pkg(uuid.New(), "Y new")
	y.SupersededUpdates = []identity.GUID{x.Identity.UpdateID}
	candidates := []*xmlmeta.Package{x, y}

	poolWide := filter.Apply(candidates, filter.Query{Title: "old", SkipSuperseded: true})
	assert.Len(t, poolWide, 1)
	assert.Equal(t, "X old", poolWide[0].Title)

	perPkg := filter.Apply(candidates, filter.Query{Title: "old", SkipSuperseded: true, PerPkgSuperseded: true})
	assert.Empty(t, perPkg)
}

func TestApplyProductAndClassificationAreSubtractive(t *testing.T) {
	wantedProduct := uuid.New()
	otherProduct := uuid.New()

	a := pkg(uuid.New(), "A", wantedProduct)
	b := pkg(uuid.New(), "B", otherProduct)

	out := filter.Apply([]*xmlmeta.Package{a, b}, filter.Query{Products: []identity.GUID{wantedProduct}})

	assert.Len(t, out, 1)
	assert.Equal(t, "A", out[0].Title)
}

func TestApplyTitleIsCaseInsensitiveTokenAnd(t *testing.T) {
	a := pkg(uuid.New(), "Security Update for Widgets")
	b := pkg(uuid.New(), "Feature Update for Gadgets")

	out := filter.Apply([]*xmlmeta.Package{a, b}, filter.Query{Title: "update widgets"})

	assert.Len(t, out, 1)
	assert.Equal(t, a.Identity, out[0].Identity)
}

func TestApplyIDWhitelist(t *testing.T) {
	a := pkg(uuid.New(), "A")
	b := pkg(uuid.New(), "B")

	out := filter.Apply([]*xmlmeta.Package{a, b}, filter.Query{IDs: []identity.GUID{b.Identity.UpdateID}})

	assert.Len(t, out, 1)
	assert.Equal(t, "B", out[0].Title)
}

func TestApplyFirstXTruncates(t *testing.T) {
	a := pkg(uuid.New(), "A")
	b := pkg(uuid.New(), "B")
	c := pkg(uuid.New(), "C")

	out := filter.Apply([]*xmlmeta.Package{a, b, c}, filter.Query{FirstX: 2})

	assert.Len(t, out, 2)
}

func TestApplyEmptyQueryIsIdentity(t *testing.T) {
	a := pkg(uuid.New(), "A")
	b := pkg(uuid.New(), "B")

	out := filter.Apply([]*xmlmeta.Package{a, b}, filter.Query{})

	assert.Len(t, out, 2)
}
