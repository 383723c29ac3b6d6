// Package langid detects the language of bibliographic text and maps
// between detector languages and the three-letter codes used in
// journal configuration and built records.
package langid

import (
	"sort"
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// codeToLanguage maps language codes to detector languages. Both the
// bibliographic three-letter codes (including the legacy variants used
// in catalog data) and the two-letter codes emitted by most translators
// are accepted.
var codeToLanguage = map[string]lingua.Language{
	"eng": lingua.English,
	"en":  lingua.English,
	"ger": lingua.German,
	"deu": lingua.German,
	"de":  lingua.German,
	"fre": lingua.French,
	"fra": lingua.French,
	"fr":  lingua.French,
	"spa": lingua.Spanish,
	"es":  lingua.Spanish,
	"ita": lingua.Italian,
	"it":  lingua.Italian,
	"por": lingua.Portuguese,
	"pt":  lingua.Portuguese,
	"dut": lingua.Dutch,
	"nld": lingua.Dutch,
	"nl":  lingua.Dutch,
	"lat": lingua.Latin,
	"la":  lingua.Latin,
	"gre": lingua.Greek,
	"ell": lingua.Greek,
	"el":  lingua.Greek,
	"rus": lingua.Russian,
	"ru":  lingua.Russian,
	"pol": lingua.Polish,
	"pl":  lingua.Polish,
	"cze": lingua.Czech,
	"ces": lingua.Czech,
	"cs":  lingua.Czech,
	"dan": lingua.Danish,
	"da":  lingua.Danish,
	"swe": lingua.Swedish,
	"sv":  lingua.Swedish,
	"fin": lingua.Finnish,
	"fi":  lingua.Finnish,
	"hun": lingua.Hungarian,
	"hu":  lingua.Hungarian,
	"tur": lingua.Turkish,
	"tr":  lingua.Turkish,
	"ara": lingua.Arabic,
	"ar":  lingua.Arabic,
	"heb": lingua.Hebrew,
	"he":  lingua.Hebrew,
	"cat": lingua.Catalan,
	"ca":  lingua.Catalan,
	"rum": lingua.Romanian,
	"ron": lingua.Romanian,
	"ro":  lingua.Romanian,
}

var languageToCode = map[lingua.Language]string{
	lingua.English:    "eng",
	lingua.German:     "ger",
	lingua.French:     "fre",
	lingua.Spanish:    "spa",
	lingua.Italian:    "ita",
	lingua.Portuguese: "por",
	lingua.Dutch:      "dut",
	lingua.Latin:      "lat",
	lingua.Greek:      "gre",
	lingua.Russian:    "rus",
	lingua.Polish:     "pol",
	lingua.Czech:      "cze",
	lingua.Danish:     "dan",
	lingua.Swedish:    "swe",
	lingua.Finnish:    "fin",
	lingua.Hungarian:  "hun",
	lingua.Turkish:    "tur",
	lingua.Arabic:     "ara",
	lingua.Hebrew:     "heb",
	lingua.Catalan:    "cat",
	lingua.Romanian:   "rum",
}

// IsValid reports whether code is a language code the detector knows.
func IsValid(code string) bool {
	_, ok := codeToLanguage[strings.ToLower(code)]
	return ok
}

// Canonical normalizes a code to its preferred bibliographic
// three-letter form, e.g. "deu" or "de" to "ger". The second result is
// false for unknown codes.
func Canonical(code string) (string, bool) {
	language, ok := codeToLanguage[strings.ToLower(code)]
	if !ok {
		return "", false
	}
	return languageToCode[language], true
}

// Classifier detects languages via statistical n-gram models. Detectors
// are cached per candidate set since building one loads the models.
type Classifier struct {
	mu        sync.Mutex
	detectors map[string]lingua.LanguageDetector
}

// NewClassifier returns an empty Classifier.
func NewClassifier() *Classifier {
	return &Classifier{detectors: make(map[string]lingua.LanguageDetector)}
}

// Classify returns the detected language codes for text, most confident
// first. A non-empty candidates list restricts detection to those
// languages; unknown candidate codes are ignored. An empty result means
// nothing could be detected with any confidence.
func (c *Classifier) Classify(text string, candidates []string) []string {
	languages := resolveCandidates(candidates)
	if len(languages) == 0 {
		for language := range languageToCode {
			languages = append(languages, language)
		}
	}
	if len(languages) == 1 {
		return []string{languageToCode[languages[0]]}
	}

	detector := c.detector(languages)
	confidences := detector.ComputeLanguageConfidenceValues(text)

	var codes []string
	for _, confidence := range confidences {
		if confidence.Value() < 0.1 {
			continue
		}
		codes = append(codes, languageToCode[confidence.Language()])
	}
	if len(codes) == 0 {
		if language, exists := detector.DetectLanguageOf(text); exists {
			codes = append(codes, languageToCode[language])
		}
	}
	return codes
}

func (c *Classifier) detector(languages []lingua.Language) lingua.LanguageDetector {
	key := cacheKey(languages)

	c.mu.Lock()
	defer c.mu.Unlock()
	if detector, ok := c.detectors[key]; ok {
		return detector
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		Build()
	c.detectors[key] = detector
	return detector
}

func resolveCandidates(candidates []string) []lingua.Language {
	seen := make(map[lingua.Language]bool)
	var languages []lingua.Language
	for _, code := range candidates {
		language, ok := codeToLanguage[strings.ToLower(code)]
		if !ok || seen[language] {
			continue
		}
		seen[language] = true
		languages = append(languages, language)
	}
	return languages
}

func cacheKey(languages []lingua.Language) string {
	codes := make([]string, 0, len(languages))
	for _, language := range languages {
		codes = append(codes, languageToCode[language])
	}
	sort.Strings(codes)
	return strings.Join(codes, ",")
}
