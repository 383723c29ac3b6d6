package conversion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/harvester"
	"github.com/thefass/ub-tools/internal/langid"
)

// overrideToken is replaced by the field's original value in override
// filter expressions.
const overrideToken = "%org%"

var romanPagePattern = regexp.MustCompile(`^M{0,4}(CM|CD|D?C{0,3})(XC|XL|L?X{0,3})(IX|IV|V?I{0,3})$`)

// creatorTitles are honorifics moved out of a creator's name into its
// title, matched case-insensitively with an optional trailing period.
var creatorTitles = map[string]bool{
	"jr":   true,
	"sr":   true,
	"sj":   true,
	"s.j":  true,
	"fr":   true,
	"hr":   true,
	"dr":   true,
	"prof": true,
	"em":   true,
}

// creatorAffixes are generational suffixes moved out of a creator's
// last name.
var creatorAffixes = map[string]bool{
	"i":   true,
	"ii":  true,
	"iii": true,
	"iv":  true,
	"v":   true,
}

// Augmenter applies the per-journal normalization and enrichment rules
// to converted metadata.
type Augmenter struct {
	lookup     harvester.AuthorLookup
	classifier harvester.LanguageClassifier
	blacklist  map[string]bool
	logger     *zap.Logger
}

// NewAugmenter builds an Augmenter. lookup and classifier may be nil,
// disabling author-ID resolution and language detection respectively.
func NewAugmenter(lookup harvester.AuthorLookup, classifier harvester.LanguageClassifier, authorBlacklist []string, logger *zap.Logger) *Augmenter {
	blacklist := make(map[string]bool, len(authorBlacklist))
	for _, name := range authorBlacklist {
		blacklist[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &Augmenter{
		lookup:     lookup,
		classifier: classifier,
		blacklist:  blacklist,
		logger:     logger,
	}
}

// Excluded checks the journal's exclusion filters against the metadata
// and returns the name of the first matching field.
func Excluded(m *Metadata, journal *harvester.JournalParams) (string, bool) {
	for field, pattern := range journal.ExclusionFilters {
		if pattern.MatchString(m.Field(field)) {
			return field, true
		}
	}
	return "", false
}

// Augment normalizes and enriches m in place. The rules run in a fixed
// order since later rules depend on the output of earlier ones.
func (a *Augmenter) Augment(ctx context.Context, m *Metadata, journal *harvester.JournalParams) error {
	a.stripMarkup(m)
	a.suppressFields(m, journal)
	a.overrideFields(m, journal)

	if err := normalizeDate(m, journal.DateLayout); err != nil {
		return err
	}

	m.Volume = trimLeadingZeros(m.Volume)
	m.Issue = trimLeadingZeros(m.Issue)
	m.Pages = normalizePages(m.Pages)

	if journal.Name != "" {
		m.PublicationTitle = journal.Name
	}

	if err := selectSuperior(m, journal); err != nil {
		return err
	}

	a.postprocessCreators(ctx, m)
	a.resolveLanguages(m, journal)

	if journal.License != "" {
		m.Rights = journal.License
	}

	if journal.ReviewPattern != nil {
		m.IsReview = matchesReview(m, journal.ReviewPattern)
	}

	return nil
}

func (a *Augmenter) stripMarkup(m *Metadata) {
	for _, ptr := range m.scalarFields() {
		*ptr = strings.TrimSpace(StripHTML(*ptr))
	}
}

func (a *Augmenter) suppressFields(m *Metadata, journal *harvester.JournalParams) {
	for field, pattern := range journal.SuppressionFilters {
		value := m.Field(field)
		if value != "" && pattern.MatchString(value) {
			a.logger.Debug("field suppressed",
				zap.String("journal", journal.Name),
				zap.String("field", field))
			m.SetField(field, "")
		}
	}
}

func (a *Augmenter) overrideFields(m *Metadata, journal *harvester.JournalParams) {
	for field, replacement := range journal.OverrideFilters {
		original := m.Field(field)
		m.SetField(field, strings.ReplaceAll(replacement, overrideToken, original))
	}
}

// normalizeDate parses the harvested date and stores it in ISO form,
// also deriving the year. An unparseable date fails the item.
func normalizeDate(m *Metadata, layout string) error {
	if m.Date == "" {
		return nil
	}

	var parsed time.Time
	var err error
	if layout != "" {
		parsed, err = time.Parse(layout, m.Date)
	} else {
		parsed, err = dateparse.ParseAny(m.Date)
	}
	if err != nil {
		return fmt.Errorf("could not parse date %q: %w", m.Date, err)
	}

	m.Date = parsed.Format("2006-01-02")
	m.Year = parsed.Format("2006")
	return nil
}

func trimLeadingZeros(s string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(s), "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}

// normalizePages converts roman-numeral page bounds to arabic numbers
// and collapses ranges with equal bounds. A range is converted only
// when every bound is a roman numeral; mixed ranges pass through.
func normalizePages(pages string) string {
	pages = strings.TrimSpace(pages)
	if pages == "" {
		return ""
	}

	bounds := strings.SplitN(pages, "-", 2)
	for i, bound := range bounds {
		bounds[i] = strings.TrimSpace(bound)
	}
	if converted, ok := convertRomanBounds(bounds); ok {
		bounds = converted
	}
	if len(bounds) == 2 && bounds[0] == bounds[1] {
		return bounds[0]
	}
	return strings.Join(bounds, "-")
}

func convertRomanBounds(bounds []string) ([]string, bool) {
	converted := make([]string, len(bounds))
	for i, bound := range bounds {
		upper := strings.ToUpper(bound)
		if upper == "" || !romanPagePattern.MatchString(upper) {
			return nil, false
		}
		converted[i] = fmt.Sprintf("%d", romanToArabic(upper))
	}
	return converted, true
}

var romanValues = map[byte]int{
	'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000,
}

func romanToArabic(roman string) int {
	total := 0
	for i := 0; i < len(roman); i++ {
		value := romanValues[roman[i]]
		if i+1 < len(roman) && value < romanValues[roman[i+1]] {
			total -= value
			continue
		}
		total += value
	}
	return total
}

// selectSuperior picks the journal's superior identifier, preferring
// the online edition over print. A configured ISSN without a matching
// identifier fails the item since the built record could not be linked
// to its parent.
func selectSuperior(m *Metadata, journal *harvester.JournalParams) error {
	switch {
	case journal.ISSN.Online != "":
		if journal.Identifier.Online == "" {
			return fmt.Errorf("journal %q has an online ISSN but no online identifier", journal.Name)
		}
		m.ISSN = journal.ISSN.Online
		m.SuperiorID = journal.Identifier.Online
	case journal.ISSN.Print != "":
		if journal.Identifier.Print == "" {
			return fmt.Errorf("journal %q has a print ISSN but no print identifier", journal.Name)
		}
		m.ISSN = journal.ISSN.Print
		m.SuperiorID = journal.Identifier.Print
	}
	return nil
}

// postprocessCreators splits combined names, extracts honorifics and
// affixes, drops blacklisted names and resolves authority ids.
func (a *Augmenter) postprocessCreators(ctx context.Context, m *Metadata) {
	kept := m.Creators[:0]
	for _, creator := range m.Creators {
		creator = splitCreatorName(creator)
		if a.blacklisted(creator) {
			continue
		}
		creator = extractCreatorTitleAffix(creator)
		if a.lookup != nil && creator.LastName != "" {
			id, err := a.lookup.LookupID(ctx, creator.FullName())
			if err != nil {
				a.logger.Warn("author lookup failed",
					zap.String("author", creator.FullName()),
					zap.Error(err))
			} else {
				creator.ID = id
			}
		}
		kept = append(kept, creator)
	}
	m.Creators = kept
}

func splitCreatorName(creator Creator) Creator {
	if creator.FirstName != "" || !strings.Contains(creator.LastName, ",") {
		return creator
	}
	last, first, _ := strings.Cut(creator.LastName, ",")
	creator.LastName = strings.TrimSpace(last)
	creator.FirstName = strings.TrimSpace(first)
	return creator
}

func isCreatorTitle(token string) bool {
	token = strings.TrimSuffix(token, ".")
	return creatorTitles[strings.ToLower(token)]
}

func isCreatorAffix(token string) bool {
	return creatorAffixes[strings.ToLower(token)]
}

// extractCreatorTitleAffix moves honorific tokens of either name part
// into the title and generational suffixes of the last name into the
// affix. When the filtering empties one name part, the other is
// re-split on its last space.
func extractCreatorTitleAffix(creator Creator) Creator {
	var titles, firsts []string
	for _, token := range strings.Fields(creator.FirstName) {
		if isCreatorTitle(token) {
			titles = append(titles, token)
			continue
		}
		firsts = append(firsts, token)
	}

	var affixes, lasts []string
	for _, token := range strings.Fields(creator.LastName) {
		switch {
		case isCreatorTitle(token):
			titles = append(titles, token)
		case isCreatorAffix(token):
			affixes = append(affixes, token)
		default:
			lasts = append(lasts, token)
		}
	}

	creator.Title = strings.Join(titles, " ")
	creator.Affix = strings.Join(affixes, " ")

	first := strings.Join(firsts, " ")
	last := strings.Join(lasts, " ")
	switch {
	case first == "" && last != "":
		first, last = resplitCreatorName(last)
	case last == "" && first != "":
		first, last = resplitCreatorName(first)
	}
	creator.FirstName = first
	creator.LastName = last
	return creator
}

func resplitCreatorName(name string) (first, last string) {
	if idx := strings.LastIndex(name, " "); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return name, ""
}

func (a *Augmenter) blacklisted(creator Creator) bool {
	return a.blacklist[strings.ToLower(creator.FullName())] ||
		a.blacklist[strings.ToLower(creator.LastName)]
}

// resolveLanguages fills m.Languages from the harvested language field
// or, when that is missing, invalid or distrusted, from statistical
// detection restricted to the journal's expected languages.
func (a *Augmenter) resolveLanguages(m *Metadata, journal *harvester.JournalParams) {
	if !journal.ForceLanguageDetection && m.Language != "" {
		if canonical, ok := langid.Canonical(m.Language); ok {
			m.Languages = []string{canonical}
			return
		}
	}

	// A single expected language needs no detection.
	if len(journal.ExpectedLanguages) == 1 {
		if canonical, ok := langid.Canonical(journal.ExpectedLanguages[0]); ok {
			m.Languages = []string{canonical}
			return
		}
	}

	if a.classifier == nil {
		return
	}
	text := a.languageSourceText(m, journal)
	if strings.TrimSpace(text) == "" {
		return
	}
	m.Languages = a.classifier.Classify(text, journal.ExpectedLanguages)
}

// languageSourceText assembles the text sample used for detection. A
// short title alone is an unreliable sample, so the abstract is added
// when the title has fewer than five spaces.
func (a *Augmenter) languageSourceText(m *Metadata, journal *harvester.JournalParams) string {
	if journal.LanguageSourceFields != "" {
		var parts []string
		for _, field := range strings.Split(journal.LanguageSourceFields, ",") {
			if value := m.Field(strings.TrimSpace(field)); value != "" {
				parts = append(parts, value)
			}
		}
		return strings.Join(parts, " ")
	}

	text := m.Title
	if strings.Count(text, " ") < 5 && m.AbstractNote != "" {
		text += " " + m.AbstractNote
	}
	return text
}

func matchesReview(m *Metadata, pattern *regexp.Regexp) bool {
	for _, keyword := range m.Keywords {
		if pattern.MatchString(keyword) {
			return true
		}
	}
	return pattern.MatchString(m.Title) || pattern.MatchString(m.ShortTitle)
}
