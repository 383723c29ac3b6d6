package conversion

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// customNoteSeparator splits "key: value" notes that carry harvested
// custom metadata.
const customNoteSeparator = ": "

// ConvertItem maps one translated item onto the normalized metadata
// representation.
func ConvertItem(item webItem) *Metadata {
	m := &Metadata{
		ItemType:         item.ItemType,
		Title:            item.Title,
		ShortTitle:       item.ShortTitle,
		AbstractNote:     item.AbstractNote,
		PublicationTitle: item.PublicationTitle,
		WebsiteTitle:     item.WebsiteTitle,
		Volume:           item.Volume,
		Issue:            item.Issue,
		Pages:            item.Pages,
		Date:             item.Date,
		DOI:              item.DOI,
		Language:         item.Language,
		URL:              item.URL,
		ISSN:             item.ISSN,
		Rights:           item.Rights,
		Creators:         append([]Creator(nil), item.Creators...),
		Custom:           make(map[string]string),
	}

	// Website translations put the site name where journal
	// translations put the publication title.
	if m.PublicationTitle == "" {
		m.PublicationTitle = item.WebsiteTitle
	}

	for _, tag := range item.Tags {
		if tag.Tag != "" {
			m.Keywords = append(m.Keywords, tag.Tag)
		}
	}

	for _, note := range item.Notes {
		text := strings.TrimSpace(StripHTML(note.Note))
		if text == "" {
			continue
		}
		if key, value, ok := splitCustomNote(text); ok {
			m.Custom[key] = value
			continue
		}
		m.Notes = append(m.Notes, text)
	}

	return m
}

// splitCustomNote recognizes single-line "key: value" notes.
func splitCustomNote(text string) (string, string, bool) {
	if strings.ContainsAny(text, "\n\r") {
		return "", "", false
	}
	key, value, found := strings.Cut(text, customNoteSeparator)
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if !found || key == "" || value == "" || strings.Contains(key, " ") {
		return "", "", false
	}
	return key, value, true
}

// StripHTML reduces markup to its text content. Plain strings pass
// through untouched.
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}
