package xmlmeta

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wsuscatalog/wsuscatalog/internal/identity"
)

// ErrMalformedMetadata is returned (possibly wrapped) whenever a blob
// cannot be parsed into a Package.
var ErrMalformedMetadata = fmt.Errorf("malformed update metadata")

// URLTable maps a file's first-digest base64 to its MU/USS download URLs,
// as returned alongside a GetUpdateData batch.
type URLTable map[string]SourceURLs

// --- raw wire shapes ---------------------------------------------------

type rawUpdate struct {
	XMLName       xml.Name          `xml:"Update"`
	Identity      rawUpdateIdentity `xml:"UpdateIdentity"`
	Properties    rawProperties     `xml:"Properties"`
	HandlerData   rawHandlerData    `xml:"HandlerSpecificData"`
	Localized     rawLocalizedColl  `xml:"LocalizedPropertiesCollection"`
	Relationships rawRelationships  `xml:"Relationships"`
	Applicability rawApplicability  `xml:"ApplicabilityRules"`
	Files         rawFiles          `xml:"Files"`
}

type rawUpdateIdentity struct {
	UpdateID       string `xml:"UpdateID,attr"`
	RevisionNumber int32  `xml:"RevisionNumber,attr"`
}

type rawProperties struct {
	UpdateType  string `xml:"UpdateType,attr"`
	KBArticleID string `xml:"KBArticleID,attr"`
}

type rawHandlerData struct {
	CategoryInformation *rawCategoryInformation `xml:"CategoryInformation"`
}

type rawCategoryInformation struct {
	CategoryType string `xml:"CategoryType,attr"`
}

type rawLocalizedColl struct {
	Items []rawLocalizedProperties `xml:"LocalizedProperties"`
}

type rawLocalizedProperties struct {
	Language    string `xml:"Language"`
	Title       string `xml:"Title"`
	Description string `xml:"Description"`
}

type rawRelationships struct {
	Prerequisites     rawPrerequisites `xml:"Prerequisites"`
	BundledUpdates    rawIdentityList  `xml:"BundledUpdates"`
	SupersededUpdates rawIdentityList  `xml:"SupersededUpdates"`
}

type rawPrerequisites struct {
	Simple     []rawUpdateIdentityRef `xml:"UpdateIdentity"`
	AtLeastOne []rawAtLeastOne        `xml:"AtLeastOne"`
}

type rawAtLeastOne struct {
	IsCategory string                 `xml:"IsCategory,attr"`
	Items      []rawUpdateIdentityRef `xml:"UpdateIdentity"`
}

type rawUpdateIdentityRef struct {
	UpdateID       string `xml:"UpdateID,attr"`
	RevisionNumber int32  `xml:"RevisionNumber,attr"`
}

type rawIdentityList struct {
	Items []rawUpdateIdentityRef `xml:"UpdateIdentity"`
}

type rawApplicability struct {
	Metadata rawApplicabilityMetadata `xml:"Metadata"`
}

type rawApplicabilityMetadata struct {
	Drivers []rawDriverMetadata `xml:"WindowsDriverMetaData"`
}

type rawDriverMetadata struct {
	HardwareID       string           `xml:"HardwareID,attr"`
	WHQLDriverID     string           `xml:"WHQLDriverID,attr"`
	Manufacturer     string           `xml:"Manufacturer,attr"`
	Company          string           `xml:"Company,attr"`
	Provider         string           `xml:"Provider,attr"`
	Class            string           `xml:"Class,attr"`
	DriverVerDate    string           `xml:"DriverVerDate,attr"`
	DriverVerVersion string           `xml:"DriverVerVersion,attr"`
	Distribution     rawHWIDList      `xml:"DistributionComputerHardwareIDs"`
	Target           rawHWIDList      `xml:"TargetComputerHardwareIDs"`
	FeatureScores    rawFeatureScores `xml:"FeatureScores"`
}

type rawHWIDList struct {
	IDs []string `xml:"Id"`
}

type rawFeatureScores struct {
	Items []rawFeatureScore `xml:"FeatureScore"`
}

type rawFeatureScore struct {
	OSVersion string `xml:"OSVersion,attr"`
	Score     int    `xml:"Score,attr"`
}

type rawFiles struct {
	Items []rawFile `xml:"File"`
}

type rawFile struct {
	FileName          string          `xml:"FileName,attr"`
	Size              int64           `xml:"Size,attr"`
	Modified          string          `xml:"Modified,attr"`
	Digest            string          `xml:"Digest,attr"`
	DigestAlgorithm   string          `xml:"DigestAlgorithm,attr"`
	PatchingType      string          `xml:"PatchingType,attr"`
	AdditionalDigests []rawAddlDigest `xml:"AdditionalDigest"`
}

type rawAddlDigest struct {
	Algorithm string `xml:"Algorithm,attr"`
	Value     string `xml:",chardata"`
}

// driverVersionPattern matches a 4-part WHQL version string.
var driverVersionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)\.(\d+)$`)

// Parse decodes one update's raw XML metadata into a Package. urlTable may
// be nil (categories/detectoids carry no files); when non-nil and a file's
// digests match nothing in it, parsing fails for the whole package.
func Parse(data []byte, urlTable URLTable) (*Package, error) {
	var raw rawUpdate
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}

	updateID, err := uuid.Parse(raw.Identity.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("%w: update identity: %v", ErrMalformedMetadata, err)
	}

	kind, categoryType, err := classify(raw.Properties.UpdateType, raw.HandlerData.CategoryInformation)
	if err != nil {
		return nil, err
	}

	title, description, err := parseLocalized(raw.Localized)
	if err != nil {
		return nil, err
	}

	prereqs, err := parsePrerequisites(raw.Relationships.Prerequisites)
	if err != nil {
		return nil, err
	}

	pkg := &Package{
		Identity:     identity.PackageIdentity{UpdateID: updateID, Revision: raw.Identity.RevisionNumber},
		Kind:         kind,
		Title:        title,
		Description:  description,
		Prereqs:      prereqs,
		CategoryType: categoryType,
		rawBytes:     data,
	}

	if kind == KindSoftwareUpdate {
		pkg.KBArticleID = raw.Properties.KBArticleID
		pkg.SupersededUpdates = dedupGUIDs(identityRefGUIDs(raw.Relationships.SupersededUpdates.Items))
		pkg.BundledUpdates, err = parseBundled(raw.Relationships.BundledUpdates)
		if err != nil {
			return nil, err
		}
	}

	if kind == KindDriverUpdate {
		pkg.DriverRecords, err = parseDriverMetadata(raw.Applicability.Metadata.Drivers)
		if err != nil {
			return nil, err
		}
	}

	pkg.Files, err = parseFiles(raw.Files, urlTable)
	if err != nil {
		return nil, err
	}

	return pkg, nil
}

func classify(updateType string, cat *rawCategoryInformation) (PackageKind, string, error) {
	switch updateType {
	case "Detectoid":
		return KindDetectoid, "", nil
	case "Driver":
		return KindDriverUpdate, "", nil
	case "Software":
		return KindSoftwareUpdate, "", nil
	case "Category":
		if cat == nil {
			return 0, "", fmt.Errorf("%w: category update missing CategoryInformation", ErrMalformedMetadata)
		}
		switch strings.ToLower(cat.CategoryType) {
		case "updateclassification":
			return KindClassificationCategory, "Classification", nil
		case "product", "company", "productfamily":
			return KindProductCategory, "Product", nil
		default:
			return 0, "", fmt.Errorf("%w: unknown CategoryType %q", ErrMalformedMetadata, cat.CategoryType)
		}
	default:
		return 0, "", fmt.Errorf("%w: unknown UpdateType %q", ErrMalformedMetadata, updateType)
	}
}

func parseLocalized(coll rawLocalizedColl) (title, description string, err error) {
	for _, lp := range coll.Items {
		if lp.Language == "en" {
			if lp.Title == "" {
				return "", "", fmt.Errorf("%w: missing en title", ErrMalformedMetadata)
			}
			return lp.Title, lp.Description, nil
		}
	}
	return "", "", fmt.Errorf("%w: no en localized properties", ErrMalformedMetadata)
}

func parsePrerequisites(raw rawPrerequisites) ([]Prerequisite, error) {
	var out []Prerequisite
	for _, s := range raw.Simple {
		id, err := uuid.Parse(s.UpdateID)
		if err != nil {
			return nil, fmt.Errorf("%w: prerequisite UpdateID: %v", ErrMalformedMetadata, err)
		}
		out = append(out, Prerequisite{Kind: PrereqSimple, UpdateID: id})
	}
	for _, group := range raw.AtLeastOne {
		if len(group.Items) == 0 {
			return nil, fmt.Errorf("%w: empty AtLeastOne group", ErrMalformedMetadata)
		}
		ids := make([]identity.GUID, 0, len(group.Items))
		for _, item := range group.Items {
			id, err := uuid.Parse(item.UpdateID)
			if err != nil {
				return nil, fmt.Errorf("%w: AtLeastOne UpdateID: %v", ErrMalformedMetadata, err)
			}
			ids = append(ids, id)
		}
		out = append(out, Prerequisite{
			Kind:       PrereqAtLeastOne,
			UpdateIDs:  ids,
			IsCategory: group.IsCategory == "true",
		})
	}
	return out, nil
}

func identityRefGUIDs(refs []rawUpdateIdentityRef) []identity.GUID {
	out := make([]identity.GUID, 0, len(refs))
	for _, r := range refs {
		if id, err := uuid.Parse(r.UpdateID); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func dedupGUIDs(ids []identity.GUID) []identity.GUID {
	seen := make(map[identity.GUID]bool, len(ids))
	out := make([]identity.GUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func parseBundled(list rawIdentityList) ([]identity.PackageIdentity, error) {
	out := make([]identity.PackageIdentity, 0, len(list.Items))
	for _, ref := range list.Items {
		id, err := uuid.Parse(ref.UpdateID)
		if err != nil {
			return nil, fmt.Errorf("%w: bundled update id: %v", ErrMalformedMetadata, err)
		}
		out = append(out, identity.PackageIdentity{UpdateID: id, Revision: ref.RevisionNumber})
	}
	return out, nil
}

func parseDriverMetadata(raws []rawDriverMetadata) ([]DriverMetadata, error) {
	out := make([]DriverMetadata, 0, len(raws))
	for _, r := range raws {
		date, err := time.Parse("2006-01-02", r.DriverVerDate)
		if err != nil {
			return nil, fmt.Errorf("%w: driver date %q: %v", ErrMalformedMetadata, r.DriverVerDate, err)
		}
		packed, err := packDriverVersion(r.DriverVerVersion)
		if err != nil {
			return nil, err
		}
		scores := make([]FeatureScore, 0, len(r.FeatureScores.Items))
		for _, fs := range r.FeatureScores.Items {
			scores = append(scores, FeatureScore{OSVersionID: fs.OSVersion, Score: fs.Score})
		}
		out = append(out, DriverMetadata{
			HardwareID:                strings.ToLower(r.HardwareID),
			WHQLDriverID:              r.WHQLDriverID,
			Manufacturer:              r.Manufacturer,
			Company:                   r.Company,
			Provider:                  r.Provider,
			Class:                     r.Class,
			Version:                   DriverVersion{Date: date, Packed: packed},
			FeatureScores:             scores,
			DistributionComputerHWIDs: r.Distribution.IDs,
			TargetComputerHWIDs:       r.Target.IDs,
		})
	}
	return out, nil
}

// packDriverVersion packs "major.minor.rev.build" into
// (major<<48)|(minor<<32)|(rev<<16)|build.
func packDriverVersion(v string) (uint64, error) {
	m := driverVersionPattern.FindStringSubmatch(v)
	if m == nil {
		return 0, fmt.Errorf("%w: malformed driver version %q", ErrMalformedMetadata, v)
	}
	parts := make([]uint64, 4)
	for i, s := range m[1:] {
		n, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: driver version component %q: %v", ErrMalformedMetadata, s, err)
		}
		parts[i] = n
	}
	return (parts[0] << 48) | (parts[1] << 32) | (parts[2] << 16) | parts[3], nil
}

func parseFiles(raw rawFiles, urlTable URLTable) ([]ContentFile, error) {
	out := make([]ContentFile, 0, len(raw.Items))
	for _, f := range raw.Items {
		digests := []Digest{{Algorithm: f.DigestAlgorithm, Base64: f.Digest}}
		for _, ad := range f.AdditionalDigests {
			digests = append(digests, Digest{Algorithm: ad.Algorithm, Base64: strings.TrimSpace(ad.Value)})
		}

		var modified time.Time
		if f.Modified != "" {
			parsed, err := time.Parse(time.RFC3339, f.Modified)
			if err != nil {
				return nil, fmt.Errorf("%w: file modified time %q: %v", ErrMalformedMetadata, f.Modified, err)
			}
			modified = parsed
		}

		cf := ContentFile{
			FileName:      f.FileName,
			Size:          f.Size,
			Modified:      modified,
			Digests:       digests,
			PrimaryDigest: digests[0],
			PatchingType:  f.PatchingType,
		}

		if urlTable != nil {
			urls, ok := lookupURLs(cf.Digests, urlTable)
			if !ok {
				return nil, fmt.Errorf("%w: no URL entry for file %q", ErrMalformedMetadata, f.FileName)
			}
			cf.URLs = urls
		}

		out = append(out, cf)
	}
	return out, nil
}

func lookupURLs(digests []Digest, table URLTable) (SourceURLs, bool) {
	for _, d := range digests {
		if urls, ok := table[d.Base64]; ok {
			return urls, true
		}
	}
	return SourceURLs{}, false
}
