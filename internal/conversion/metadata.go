// Package conversion turns translated item JSON into normalized
// metadata and finally into structured bibliographic records.
package conversion

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Creator is one author, editor or translator of an item.
type Creator struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Type      string `json:"creatorType,omitempty"`

	// Filled during post-processing.
	Title string `json:"-"`
	Affix string `json:"-"`
	ID    string `json:"-"`
}

// FullName renders the creator in "last, first" order.
func (c Creator) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.LastName + ", " + c.FirstName
}

// Metadata is the normalized intermediate representation of one item,
// after conversion from translator JSON and before record building.
type Metadata struct {
	ItemType         string
	Title            string
	ShortTitle       string
	AbstractNote     string
	PublicationTitle string
	WebsiteTitle     string
	Volume           string
	Issue            string
	Pages            string
	Date             string
	Year             string
	DOI              string
	Language         string
	URL              string
	ISSN             string
	Rights           string

	Creators []Creator
	Keywords []string
	Notes    []string

	// Languages resolved during augmentation, bibliographic codes.
	Languages []string

	// SuperiorID is the catalog identifier of the parent journal
	// record, selected during augmentation.
	SuperiorID string

	IsReview bool

	// Custom carries key:value pairs harvested from item notes, used
	// to resolve custom field templates.
	Custom map[string]string
}

// scalarFields maps the filterable field names onto the metadata
// struct. Filters configured for unknown names simply never match.
func (m *Metadata) scalarFields() map[string]*string {
	return map[string]*string{
		"itemType":         &m.ItemType,
		"title":            &m.Title,
		"shortTitle":       &m.ShortTitle,
		"abstractNote":     &m.AbstractNote,
		"publicationTitle": &m.PublicationTitle,
		"websiteTitle":     &m.WebsiteTitle,
		"volume":           &m.Volume,
		"issue":            &m.Issue,
		"pages":            &m.Pages,
		"date":             &m.Date,
		"DOI":              &m.DOI,
		"language":         &m.Language,
		"url":              &m.URL,
		"ISSN":             &m.ISSN,
		"rights":           &m.Rights,
	}
}

// Field returns the named scalar field's value, or "" for unknown
// names.
func (m *Metadata) Field(name string) string {
	if ptr, ok := m.scalarFields()[name]; ok {
		return *ptr
	}
	return ""
}

// SetField assigns the named scalar field if it exists.
func (m *Metadata) SetField(name, value string) {
	if ptr, ok := m.scalarFields()[name]; ok {
		*ptr = value
	}
}

// webItem mirrors the translator's JSON item shape. Unknown keys are
// retained nowhere; the fields below are the ones the pipeline
// consumes.
type webItem struct {
	Key              string    `json:"key"`
	ItemType         string    `json:"itemType"`
	Title            string    `json:"title"`
	ShortTitle       string    `json:"shortTitle"`
	AbstractNote     string    `json:"abstractNote"`
	PublicationTitle string    `json:"publicationTitle"`
	WebsiteTitle     string    `json:"websiteTitle"`
	Volume           string    `json:"volume"`
	Issue            string    `json:"issue"`
	Pages            string    `json:"pages"`
	Date             string    `json:"date"`
	DOI              string    `json:"DOI"`
	Language         string    `json:"language"`
	URL              string    `json:"url"`
	ISSN             string    `json:"ISSN"`
	Rights           string    `json:"rights"`
	Creators         []Creator `json:"creators"`
	Tags             []webTag  `json:"tags"`
	Notes            []webNote `json:"notes"`
	Note             string    `json:"note"`
}

type webTag struct {
	Tag string `json:"tag"`
}

type webNote struct {
	Note string `json:"note"`
}

// ParseWebResponse decodes a translator /web response into its item
// array. Standalone note items are folded into the preceding main
// item; a note with no preceding main item fails the whole response.
func ParseWebResponse(body []byte) ([]webItem, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	var items []webItem
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return nil, fmt.Errorf("parse item array: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty response: no items in result array")
	}

	var folded []webItem
	for _, item := range items {
		if item.ItemType == "note" {
			if len(folded) == 0 {
				return nil, fmt.Errorf("note item without a preceding main item")
			}
			if item.Note != "" {
				folded[len(folded)-1].Notes = append(folded[len(folded)-1].Notes, webNote{Note: item.Note})
			}
			continue
		}
		folded = append(folded, item)
	}
	return folded, nil
}
