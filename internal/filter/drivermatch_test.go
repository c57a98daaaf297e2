package filter_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsuscatalog/wsuscatalog/internal/filter"
	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

func driverPkg(id uuid.UUID, records ...xmlmeta.DriverMetadata) *xmlmeta.Package {
	return &xmlmeta.Package{
		Identity:      identity.New("updates", id, 1),
		Kind:          xmlmeta.KindDriverUpdate,
		DriverRecords: records,
	}
}

// TestMatchDriverFeatureScoreWins: two records match the same hardware ID;
// r2 carries the lower feature score and the newer driver version and is
// returned. No computer hardware IDs are passed, so both records are
// untargeted and MatchDriver picks between them by driver version alone.
func TestMatchDriverFeatureScoreWins(t *testing.T) {
	const hwid = "pci\\ven_x&dev_y"

	r1 := xmlmeta.DriverMetadata{
		HardwareID:    hwid,
		Version:       xmlmeta.DriverVersion{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Packed: 1<<48 | 0<<32 | 0<<16 | 0},
		FeatureScores: []xmlmeta.FeatureScore{{OSVersionID: "10.0", Score: 20}},
	}
	r2 := xmlmeta.DriverMetadata{
		HardwareID:    hwid,
		Version:       xmlmeta.DriverVersion{Date: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), Packed: 2<<48 | 0<<32 | 0<<16 | 0},
		FeatureScores: []xmlmeta.FeatureScore{{OSVersionID: "10.0", Score: 10}},
	}

	p1 := driverPkg(uuid.New(), r1)
	p2 := driverPkg(uuid.New(), r2)

	idx := filter.BuildHardwareIndex([]*xmlmeta.Package{p1, p2})
	best, ok := filter.MatchDriver(idx, []string{hwid}, nil, nil)

	require.True(t, ok)
	assert.Equal(t, 10, best.FeatureScores[0].Score)
}

func TestMatchDriverNoMatchReturnsFalse(t *testing.T) {
	idx := filter.BuildHardwareIndex(nil)
	_, ok := filter.MatchDriver(idx, []string{"pci\\ven_z"}, nil, nil)
	assert.False(t, ok)
}

func TestMatchDriverPrefersTargetedComputerHWID(t *testing.T) {
	const hwid = "pci\\ven_a&dev_b"

	generic := xmlmeta.DriverMetadata{
		HardwareID: hwid,
		Version:    xmlmeta.DriverVersion{Date: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	targeted := xmlmeta.DriverMetadata{
		HardwareID:                hwid,
		Version:                   xmlmeta.DriverVersion{Date: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)},
		TargetComputerHWIDs:       []string{"acme-laptop-9000"},
		DistributionComputerHWIDs: []string{"acme-laptop-9000"},
	}

	p1 := driverPkg(uuid.New(), generic)
	p2 := driverPkg(uuid.New(), targeted)

	idx := filter.BuildHardwareIndex([]*xmlmeta.Package{p1, p2})
	best, ok := filter.MatchDriver(idx, []string{hwid}, []string{"acme-laptop-9000"}, nil)

	require.True(t, ok)
	assert.Equal(t, targeted.TargetComputerHWIDs, best.TargetComputerHWIDs)
}

func TestMatchDriverSkipsInapplicableRecord(t *testing.T) {
	const hwid = "pci\\ven_c&dev_d"
	required := uuid.New()

	r := xmlmeta.DriverMetadata{HardwareID: hwid}
	p := driverPkg(uuid.New(), r)
	p.Prereqs = []xmlmeta.Prerequisite{{Kind: xmlmeta.PrereqSimple, UpdateID: required}}

	idx := filter.BuildHardwareIndex([]*xmlmeta.Package{p})

	_, ok := filter.MatchDriver(idx, []string{hwid}, nil, map[identity.GUID]bool{})
	assert.False(t, ok, "record requires a prerequisite that isn't installed")

	_, ok = filter.MatchDriver(idx, []string{hwid}, nil, map[identity.GUID]bool{required: true})
	assert.True(t, ok)
}
