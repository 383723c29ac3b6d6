// Package record models the structured bibliographic record produced by
// the conversion pipeline, together with its content checksum.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Tags of the run-specific bookkeeping fields. They carry harvest
// provenance only and never participate in the content checksum.
const (
	TagRecordID    = "001"
	TagSourceURL   = "URL"
	TagJournalID   = "ZID"
	TagJournalName = "JOU"
)

const tagLength = 3

var checksumExcludedTags = map[string]struct{}{
	TagRecordID:    {},
	TagSourceURL:   {},
	TagJournalID:   {},
	TagJournalName: {},
}

// Subfield is a single coded value inside a data field.
type Subfield struct {
	Code  byte
	Value string
}

// Field is one tagged field of a record. Control fields carry their
// payload in Value; data fields use Subfields.
type Field struct {
	Tag       string
	Ind1      byte
	Ind2      byte
	Value     string
	Subfields []Subfield
}

// Subfield returns the first subfield value with the given code, or "".
func (f *Field) Subfield(code byte) string {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return sf.Value
		}
	}
	return ""
}

// HasSubfield reports whether the field carries a subfield with the code.
func (f *Field) HasSubfield(code byte) bool {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return true
		}
	}
	return false
}

// Contents flattens the field into a single string for pattern matching
// and checksum computation.
func (f *Field) Contents() string {
	if len(f.Subfields) == 0 {
		return f.Value
	}
	var sb strings.Builder
	for i, sf := range f.Subfields {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(sf.Value)
	}
	return sb.String()
}

// Record is an ordered list of fields plus the content checksum that
// serves as the record's dedup identity.
type Record struct {
	Fields   []Field
	Checksum string
}

// AppendControl appends a control field.
func (r *Record) AppendControl(tag, value string) {
	r.Fields = append(r.Fields, Field{Tag: tag, Value: value})
}

// Append appends a data field with blank indicators.
func (r *Record) Append(tag string, subfields ...Subfield) {
	r.AppendWithIndicators(tag, ' ', ' ', subfields...)
}

// AppendWithIndicators appends a data field with explicit indicators.
func (r *Record) AppendWithIndicators(tag string, ind1, ind2 byte, subfields ...Subfield) {
	r.Fields = append(r.Fields, Field{Tag: tag, Ind1: ind1, Ind2: ind2, Subfields: subfields})
}

// First returns the first field with the given tag, or nil.
func (r *Record) First(tag string) *Field {
	for i := range r.Fields {
		if r.Fields[i].Tag == tag {
			return &r.Fields[i]
		}
	}
	return nil
}

// All returns every field with the given tag.
func (r *Record) All(tag string) []*Field {
	var fields []*Field
	for i := range r.Fields {
		if r.Fields[i].Tag == tag {
			fields = append(fields, &r.Fields[i])
		}
	}
	return fields
}

// splitFilterKey splits a "TAG" or "TAG+subfield code" filter key.
func splitFilterKey(key string) (tag string, code byte, err error) {
	switch len(key) {
	case tagLength:
		return key, 0, nil
	case tagLength + 1:
		return key[:tagLength], key[tagLength], nil
	default:
		return "", 0, fmt.Errorf("filter key %q must be a tag or a tag plus a subfield code", key)
	}
}

// matchedFieldIndexes returns the indexes of fields matched by the
// filter. A key with a subfield code matches against that subfield's
// value; a bare tag matches against the whole field contents.
func (r *Record) matchedFieldIndexes(key string, pattern *regexp.Regexp) ([]int, error) {
	tag, code, err := splitFilterKey(key)
	if err != nil {
		return nil, err
	}
	var matched []int
	for i := range r.Fields {
		field := &r.Fields[i]
		if field.Tag != tag {
			continue
		}
		if code != 0 && field.HasSubfield(code) {
			if pattern.MatchString(field.Subfield(code)) {
				matched = append(matched, i)
			}
		} else if pattern.MatchString(field.Contents()) {
			matched = append(matched, i)
		}
	}
	return matched, nil
}

// Matches reports whether any field is matched by the filter.
func (r *Record) Matches(key string, pattern *regexp.Regexp) (bool, error) {
	matched, err := r.matchedFieldIndexes(key, pattern)
	if err != nil {
		return false, err
	}
	return len(matched) > 0, nil
}

// RemoveMatching deletes every field matched by the filter and returns
// the number of removed fields.
func (r *Record) RemoveMatching(key string, pattern *regexp.Regexp) (int, error) {
	matched, err := r.matchedFieldIndexes(key, pattern)
	if err != nil {
		return 0, err
	}
	if len(matched) == 0 {
		return 0, nil
	}
	drop := make(map[int]struct{}, len(matched))
	for _, i := range matched {
		drop[i] = struct{}{}
	}
	kept := r.Fields[:0]
	for i := range r.Fields {
		if _, ok := drop[i]; !ok {
			kept = append(kept, r.Fields[i])
		}
	}
	r.Fields = kept
	return len(matched), nil
}

// ComputeChecksum hashes the record's bibliographic content. The
// bookkeeping fields (record id, source URL, journal id, journal name)
// are excluded so the checksum is stable across harvest runs.
func (r *Record) ComputeChecksum() string {
	h := sha256.New()
	for i := range r.Fields {
		field := &r.Fields[i]
		if _, excluded := checksumExcludedTags[field.Tag]; excluded {
			continue
		}
		h.Write([]byte(field.Tag))
		h.Write([]byte{field.Ind1, field.Ind2})
		if len(field.Subfields) == 0 {
			h.Write([]byte(field.Value))
		}
		for _, sf := range field.Subfields {
			h.Write([]byte{0x1f, sf.Code})
			h.Write([]byte(sf.Value))
		}
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}
