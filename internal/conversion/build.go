package conversion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/thefass/ub-tools/internal/harvester"
	"github.com/thefass/ub-tools/internal/record"
)

// creatorRoles maps translator creator types to relator codes. An
// unmapped type fails the build so new types surface immediately
// instead of silently producing malformed records.
var creatorRoles = map[string]string{
	"author":         "aut",
	"editor":         "edt",
	"translator":     "trl",
	"contributor":    "ctb",
	"reviewedAuthor": "aui",
	"seriesEditor":   "edt",
}

var placeholderPattern = regexp.MustCompile(`%([a-zA-Z][a-zA-Z0-9_]*)%`)

// recordIDSeparator joins group, harvest date and checksum into the
// record id.
const recordIDSeparator = "#"

// Builder turns augmented metadata into structured records.
type Builder struct {
	groups map[string]harvester.GroupParams
	clock  harvester.Clock
}

// NewBuilder creates a Builder resolving journal groups from groups.
func NewBuilder(groups map[string]harvester.GroupParams, clock harvester.Clock) *Builder {
	return &Builder{groups: groups, clock: clock}
}

// Build assembles the record for m. Fields are appended in ascending
// tag order; the checksum and the derived record id are computed last.
func (b *Builder) Build(m *Metadata, journal *harvester.JournalParams, sourceURL string) (*record.Record, error) {
	if strings.TrimSpace(m.Title) == "" {
		return nil, fmt.Errorf("journal %q: record without a title", journal.Name)
	}

	group, ok := b.groups[journal.Group]
	if !ok {
		return nil, fmt.Errorf("journal %q: unknown group %q", journal.Name, journal.Group)
	}

	year := m.Year
	if year == "" {
		year = strconv.Itoa(b.clock.Now().Year())
	}

	var rec record.Record

	if m.ISSN != "" {
		rec.Append("022", record.Subfield{Code: 'a', Value: m.ISSN})
	}
	if m.DOI != "" {
		rec.AppendWithIndicators("024", '7', ' ',
			record.Subfield{Code: 'a', Value: m.DOI},
			record.Subfield{Code: '2', Value: "doi"})
	}
	if len(m.Languages) > 0 {
		subfields := make([]record.Subfield, 0, len(m.Languages))
		for _, language := range m.Languages {
			subfields = append(subfields, record.Subfield{Code: 'a', Value: language})
		}
		rec.Append("041", subfields...)
	}
	if journal.SSG != "" {
		rec.Append("084",
			record.Subfield{Code: 'a', Value: journal.SSG},
			record.Subfield{Code: '2', Value: "ssgn"})
	}

	if err := appendCreators(&rec, m.Creators); err != nil {
		return nil, fmt.Errorf("journal %q: %w", journal.Name, err)
	}

	title := []record.Subfield{{Code: 'a', Value: m.Title}}
	if m.ShortTitle != "" && m.ShortTitle != m.Title {
		title = append(title, record.Subfield{Code: 'b', Value: m.ShortTitle})
	}
	rec.AppendWithIndicators("245", '0', '0', title...)

	rec.Append("264", record.Subfield{Code: 'c', Value: year})

	for _, note := range m.Notes {
		rec.Append("500", record.Subfield{Code: 'a', Value: note})
	}
	if m.AbstractNote != "" {
		rec.Append("520", record.Subfield{Code: 'a', Value: m.AbstractNote})
	}
	if m.Rights != "" {
		rec.Append("540", record.Subfield{Code: 'a', Value: m.Rights})
	}
	for _, keyword := range m.Keywords {
		rec.AppendWithIndicators("650", ' ', '4', record.Subfield{Code: 'a', Value: keyword})
	}
	if m.IsReview {
		rec.AppendWithIndicators("655", ' ', '7',
			record.Subfield{Code: 'a', Value: "Rezension"},
			record.Subfield{Code: '2', Value: "gnd-content"})
	}

	appendSuperior(&rec, m, year)

	rec.Append("852", record.Subfield{Code: 'a', Value: group.ISIL})

	recordURL := m.URL
	if recordURL == "" && m.DOI != "" {
		recordURL = "https://doi.org/" + m.DOI
	}
	if recordURL != "" {
		rec.AppendWithIndicators("856", '4', '0', record.Subfield{Code: 'u', Value: recordURL})
	}

	appendVolumeDescriptor(&rec, m, year)

	if err := appendCustomFields(&rec, m, journal); err != nil {
		return nil, fmt.Errorf("journal %q: %w", journal.Name, err)
	}

	for key, pattern := range journal.RecordRemovalFilters {
		if _, err := rec.RemoveMatching(key, pattern); err != nil {
			return nil, fmt.Errorf("journal %q: removal filter: %w", journal.Name, err)
		}
	}

	// Bookkeeping fields carry provenance only and stay outside the
	// checksum.
	rec.AppendControl(record.TagSourceURL, sourceURL)
	rec.AppendControl(record.TagJournalID, strconv.Itoa(journal.ID))
	rec.AppendControl(record.TagJournalName, journal.Name)

	rec.Checksum = rec.ComputeChecksum()
	id := strings.Join([]string{
		journal.Group,
		b.clock.Now().Format("2006-01-02"),
		rec.Checksum,
	}, recordIDSeparator)
	rec.Fields = append([]record.Field{{Tag: record.TagRecordID, Value: id}}, rec.Fields...)

	return &rec, nil
}

// RecordExcluded checks the journal's record-level exclusion filters
// against the built record and returns the first matching filter key.
func RecordExcluded(rec *record.Record, journal *harvester.JournalParams) (string, bool, error) {
	for key, pattern := range journal.RecordExclusionFilters {
		matched, err := rec.Matches(key, pattern)
		if err != nil {
			return "", false, fmt.Errorf("exclusion filter %q: %w", key, err)
		}
		if matched {
			return key, true, nil
		}
	}
	return "", false, nil
}

func appendCreators(rec *record.Record, creators []Creator) error {
	for i, creator := range creators {
		role, ok := creatorRoles[creator.Type]
		if !ok {
			return fmt.Errorf("unmapped creator type %q for %q", creator.Type, creator.FullName())
		}

		subfields := []record.Subfield{{Code: 'a', Value: creator.FullName()}}
		if creator.Affix != "" {
			subfields = append(subfields, record.Subfield{Code: 'b', Value: creator.Affix + "."})
		}
		if creator.Title != "" {
			subfields = append(subfields, record.Subfield{Code: 'c', Value: creator.Title})
		}
		subfields = append(subfields, record.Subfield{Code: '4', Value: role})
		if creator.ID != "" {
			subfields = append(subfields, record.Subfield{Code: '0', Value: "(DE-588)" + creator.ID})
		}

		tag := "700"
		if i == 0 {
			tag = "100"
		}
		rec.AppendWithIndicators(tag, '1', ' ', subfields...)
	}
	return nil
}

func appendSuperior(rec *record.Record, m *Metadata, year string) {
	if m.PublicationTitle == "" && m.SuperiorID == "" {
		return
	}
	subfields := []record.Subfield{{Code: 'i', Value: "In:"}}
	if m.PublicationTitle != "" {
		subfields = append(subfields, record.Subfield{Code: 't', Value: m.PublicationTitle})
	}
	if m.ISSN != "" {
		subfields = append(subfields, record.Subfield{Code: 'x', Value: m.ISSN})
	}
	if m.SuperiorID != "" {
		subfields = append(subfields, record.Subfield{Code: 'w', Value: "(DE-627)" + m.SuperiorID})
	}
	if descriptor := issueDescriptor(m, year); descriptor != "" {
		subfields = append(subfields, record.Subfield{Code: 'g', Value: descriptor})
	}
	rec.AppendWithIndicators("773", '0', '8', subfields...)
}

// issueDescriptor renders "volume (year), issue, Seite pages" with the
// absent parts elided.
func issueDescriptor(m *Metadata, year string) string {
	var sb strings.Builder
	if m.Volume != "" {
		sb.WriteString(m.Volume)
		sb.WriteString(" (")
		sb.WriteString(year)
		sb.WriteString(")")
	}
	if m.Issue != "" {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(m.Issue)
	}
	if m.Pages != "" {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("Seite ")
		sb.WriteString(m.Pages)
	}
	return sb.String()
}

func appendVolumeDescriptor(rec *record.Record, m *Metadata, year string) {
	if m.Volume == "" && m.Issue == "" && m.Pages == "" {
		return
	}
	var subfields []record.Subfield
	if m.Volume != "" {
		subfields = append(subfields, record.Subfield{Code: 'd', Value: m.Volume})
	}
	if m.Issue != "" {
		subfields = append(subfields, record.Subfield{Code: 'e', Value: m.Issue})
	}
	if m.Pages != "" {
		subfields = append(subfields, record.Subfield{Code: 'h', Value: m.Pages})
	}
	subfields = append(subfields, record.Subfield{Code: 'j', Value: year})
	rec.AppendWithIndicators("936", 'u', 'w', subfields...)
}

// appendCustomFields resolves the journal's "TAG:SUBFIELD:value"
// templates. A template whose placeholders cannot all be resolved is
// skipped; a malformed template fails the build.
func appendCustomFields(rec *record.Record, m *Metadata, journal *harvester.JournalParams) error {
	for _, template := range journal.CustomFields {
		parts := strings.SplitN(template, ":", 3)
		if len(parts) != 3 || len(parts[0]) != 3 || len(parts[1]) != 1 {
			return fmt.Errorf("malformed custom field template %q", template)
		}

		value, ok := resolvePlaceholders(parts[2], m)
		if !ok {
			continue
		}
		rec.Append(parts[0], record.Subfield{Code: parts[1][0], Value: value})
	}
	return nil
}

func resolvePlaceholders(template string, m *Metadata) (string, bool) {
	resolved := true
	value := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := strings.Trim(token, "%")
		if custom, ok := m.Custom[name]; ok {
			return custom
		}
		if field := m.Field(name); field != "" {
			return field
		}
		resolved = false
		return token
	})
	return value, resolved
}

// ShouldSkipOnlineFirst identifies articles published online ahead of
// their issue assignment. Without a DOI such an article cannot be
// re-identified later, so it is skipped; with the unconditional flag
// set, all of them are.
func ShouldSkipOnlineFirst(m *Metadata, skipUnconditionally bool) bool {
	switch m.ItemType {
	case "journalArticle", "magazineArticle", "review":
	default:
		return false
	}
	if m.Issue != "" || m.Volume != "" {
		return false
	}
	return skipUnconditionally || m.DOI == ""
}

// IsEarlyView identifies publisher early-view placeholders.
func IsEarlyView(m *Metadata) bool {
	return strings.EqualFold(m.Issue, "n/a") || strings.EqualFold(m.Volume, "n/a")
}

// realClock is the production Clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() harvester.Clock { return realClock{} }
