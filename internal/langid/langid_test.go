package langid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	for raw, want := range map[string]string{
		"deu": "ger",
		"ger": "ger",
		"fra": "fre",
		"ENG": "eng",
		// Translators commonly emit two-letter codes.
		"en": "eng",
		"de": "ger",
		"fr": "fre",
		"la": "lat",
	} {
		got, ok := Canonical(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got)
	}

	_, ok := Canonical("xxx")
	require.False(t, ok)
}

func TestIsValid(t *testing.T) {
	require.True(t, IsValid("ger"))
	require.True(t, IsValid("lat"))
	require.False(t, IsValid("klingon"))
}

func TestClassifySingleCandidateShortCircuits(t *testing.T) {
	classifier := NewClassifier()
	got := classifier.Classify("whatever text", []string{"ger"})
	require.Equal(t, []string{"ger"}, got)
}

func TestClassifyRestrictedToCandidates(t *testing.T) {
	classifier := NewClassifier()
	got := classifier.Classify(
		"Die theologische Auseinandersetzung mit der Frage nach dem Sinn des Lebens",
		[]string{"ger", "eng"})
	require.NotEmpty(t, got)
	require.Equal(t, "ger", got[0])
}

func TestClassifyIgnoresUnknownCandidates(t *testing.T) {
	classifier := NewClassifier()
	got := classifier.Classify("some english words in a row", []string{"eng", "xxx"})
	require.Equal(t, []string{"eng"}, got)
}
