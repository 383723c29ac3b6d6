package record

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleRecord() *Record {
	var rec Record
	rec.AppendControl(TagRecordID, "group#2023-05-01#abc")
	rec.Append("022", Subfield{Code: 'a', Value: "1111-1111"})
	rec.AppendWithIndicators("100", '1', ' ',
		Subfield{Code: 'a', Value: "Schmidt, Anna"},
		Subfield{Code: '4', Value: "aut"})
	rec.AppendWithIndicators("245", '0', '0', Subfield{Code: 'a', Value: "An Article"})
	rec.AppendWithIndicators("650", ' ', '4', Subfield{Code: 'a', Value: "first keyword"})
	rec.AppendWithIndicators("650", ' ', '4', Subfield{Code: 'a', Value: "second keyword"})
	rec.AppendControl(TagSourceURL, "https://example.com/article")
	return &rec
}

func TestFirstAndAll(t *testing.T) {
	rec := sampleRecord()

	require.Nil(t, rec.First("999"))
	require.Equal(t, "An Article", rec.First("245").Subfield('a'))
	require.Len(t, rec.All("650"), 2)
}

func TestMatchesFilterKeys(t *testing.T) {
	rec := sampleRecord()

	// Bare tag matches against the flattened contents.
	matched, err := rec.Matches("100", regexp.MustCompile(`Schmidt`))
	require.NoError(t, err)
	require.True(t, matched)

	// Tag plus subfield code matches that subfield only.
	matched, err = rec.Matches("1004", regexp.MustCompile(`^aut$`))
	require.NoError(t, err)
	require.True(t, matched)

	matched, err = rec.Matches("100a", regexp.MustCompile(`^aut$`))
	require.NoError(t, err)
	require.False(t, matched)

	_, err = rec.Matches("too-long-key", regexp.MustCompile(`.`))
	require.Error(t, err)
}

func TestRemoveMatching(t *testing.T) {
	rec := sampleRecord()

	removed, err := rec.RemoveMatching("650a", regexp.MustCompile(`^first keyword$`))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	fields := rec.All("650")
	require.Len(t, fields, 1)
	require.Equal(t, "second keyword", fields[0].Subfield('a'))
}

func TestChecksumStableAndExcludesBookkeeping(t *testing.T) {
	first := sampleRecord()
	second := sampleRecord()

	// Bookkeeping fields differ, content checksum must not.
	second.First(TagSourceURL).Value = "https://example.com/other"
	second.First(TagRecordID).Value = "group#2023-06-01#zzz"
	require.Equal(t, first.ComputeChecksum(), second.ComputeChecksum())

	// Content changes do move the checksum.
	third := sampleRecord()
	third.First("245").Subfields[0].Value = "A Different Article"
	require.NotEqual(t, first.ComputeChecksum(), third.ComputeChecksum())

	// Subfield boundaries matter: "ab"+"c" differs from "a"+"bc".
	var left, right Record
	left.Append("500", Subfield{Code: 'a', Value: "ab"}, Subfield{Code: 'b', Value: "c"})
	right.Append("500", Subfield{Code: 'a', Value: "a"}, Subfield{Code: 'b', Value: "bc"})
	require.NotEqual(t, left.ComputeChecksum(), right.ComputeChecksum())
}
