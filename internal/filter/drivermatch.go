package filter

import (
	"strings"

	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// driverEntry pairs one hardware-ID match record with the driver package it
// came from, so applicability can be checked against the package's
// prerequisites.
type driverEntry struct {
	pkg    *xmlmeta.Package
	record xmlmeta.DriverMetadata
}

// HardwareIndex maps a lowercased hardware ID to every driver record that
// claims it, across every driver update package in the pool. Build once
// at store load/reindex time and reuse across requests.
type HardwareIndex map[string][]driverEntry

// BuildHardwareIndex scans driver update packages and fans their per-record
// DriverMetadata out by HardwareID.
func BuildHardwareIndex(packages []*xmlmeta.Package) HardwareIndex {
	idx := make(HardwareIndex)
	for _, p := range packages {
		if p.Kind != xmlmeta.KindDriverUpdate {
			continue
		}
		for _, r := range p.DriverRecords {
			idx[r.HardwareID] = append(idx[r.HardwareID], driverEntry{pkg: p, record: r})
		}
	}
	return idx
}

// MatchDriver implements the "Driver match" read-path algorithm: walk
// hardwareIDs from most to least specific, filter each hardware ID's
// records to those applicable under installed, prefer a record that
// targets one of computerHWIDs (in order; among those, the smallest feature
// score wins, or the highest driver version when none carries scores), and
// otherwise take the untargeted record with the highest driver version.
// Returns false if nothing matches any hardware ID.
func MatchDriver(idx HardwareIndex, hardwareIDs []string, computerHWIDs []string, installed map[identity.GUID]bool) (xmlmeta.DriverMetadata, bool) {
	for _, hwid := range hardwareIDs {
		candidates := idx[strings.ToLower(hwid)]
		if len(candidates) == 0 {
			continue
		}

		var applicable []driverEntry
		for _, c := range candidates {
			if xmlmeta.IsApplicable(c.pkg.Prereqs, installed) {
				applicable = append(applicable, c)
			}
		}
		if len(applicable) == 0 {
			continue
		}

		targeted, untargeted := partitionByComputerHWID(applicable)

		if best, ok := bestTargeted(targeted, computerHWIDs); ok {
			return best.record, true
		}
		if best, ok := bestByVersion(untargeted); ok {
			return best.record, true
		}
	}
	return xmlmeta.DriverMetadata{}, false
}

// targetingSet is the HW-ID set a record actually targets: the
// intersection of its target and distribution lists, falling back to
// whichever list is non-empty if the other is empty.
func targetingSet(r xmlmeta.DriverMetadata) []string {
	if len(r.TargetComputerHWIDs) > 0 && len(r.DistributionComputerHWIDs) > 0 {
		return intersect(r.TargetComputerHWIDs, r.DistributionComputerHWIDs)
	}
	if len(r.TargetComputerHWIDs) > 0 {
		return r.TargetComputerHWIDs
	}
	return r.DistributionComputerHWIDs
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	var out []string
	for _, s := range b {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}

// partitionByComputerHWID splits entries into those whose targetingSet is
// non-empty and those whose targetingSet is empty.
func partitionByComputerHWID(entries []driverEntry) (targeted, untargeted []driverEntry) {
	for _, e := range entries {
		if len(targetingSet(e.record)) > 0 {
			targeted = append(targeted, e)
		} else {
			untargeted = append(untargeted, e)
		}
	}
	return targeted, untargeted
}

// bestTargeted walks computerHWIDs in order and, at the first one any
// targeted entry's targetingSet contains, returns the best entry among
// those that matched it.
func bestTargeted(targeted []driverEntry, computerHWIDs []string) (driverEntry, bool) {
	for _, hwid := range computerHWIDs {
		var matched []driverEntry
		for _, e := range targeted {
			for _, t := range targetingSet(e.record) {
				if strings.EqualFold(t, hwid) {
					matched = append(matched, e)
					break
				}
			}
		}
		if len(matched) > 0 {
			best, ok := bestByFeatureScoreThenVersion(matched)
			return best, ok
		}
	}
	return driverEntry{}, false
}

// bestByVersion picks the entry with the highest DriverVersion; used for
// the untargeted fallback pool.
func bestByVersion(entries []driverEntry) (driverEntry, bool) {
	if len(entries) == 0 {
		return driverEntry{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.record.Version.Compare(best.record.Version) > 0 {
			best = e
		}
	}
	return best, true
}

// bestByFeatureScoreThenVersion: if any candidate carries feature scores,
// the smallest score wins and version is ignored; otherwise the highest
// DriverVersion wins.
func bestByFeatureScoreThenVersion(entries []driverEntry) (driverEntry, bool) {
	if len(entries) == 0 {
		return driverEntry{}, false
	}

	var scored []driverEntry
	for _, e := range entries {
		if len(e.record.FeatureScores) > 0 {
			scored = append(scored, e)
		}
	}
	if len(scored) > 0 {
		best := scored[0]
		bestScore := minScore(best.record)
		for _, e := range scored[1:] {
			if s := minScore(e.record); s < bestScore {
				best, bestScore = e, s
			}
		}
		return best, true
	}
	return bestByVersion(entries)
}

func minScore(r xmlmeta.DriverMetadata) int {
	lowest := r.FeatureScores[0].Score
	for _, fs := range r.FeatureScores[1:] {
		if fs.Score < lowest {
			lowest = fs.Score
		}
	}
	return lowest
}
