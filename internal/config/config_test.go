package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thefass/ub-tools/internal/harvester"
)

const sampleConfig = `
server:
  enabled: true
  port: 9090
harvester:
  translation_server_url: "http://localhost:1969"
  download_delay_ms: 500
  max_conversion_tasks: 4
groups:
  ixtheo:
    isil: "DE-Tue135"
    user_agent: "harvester/1.0"
journals:
  theological review:
    id: 42
    group: ixtheo
    mode: RSS
    delivery_mode: LIVE
    url: "https://example.com/feed.xml"
    online_issn: "1234-5678"
    expected_languages: ["ger", "eng"]
    supported_urls:
      - 'https://example\.com/articles/.+'
    review_regex: '(?i)book review'
    suppress_fields:
      abstractNote: '^\s*$'
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.True(t, cfg.Server.Enabled)
	require.Equal(t, 9090, cfg.Server.Port)

	global := cfg.GlobalParams()
	require.Equal(t, "http://localhost:1969", global.TranslationServerURL)
	require.Equal(t, 500*time.Millisecond, global.DownloadDelay)
	require.Equal(t, 4, global.MaxConversionTasks)
	// Defaults survive partial configuration.
	require.Equal(t, 10*time.Second, global.RequestTimeout)

	groups := cfg.GroupParams()
	require.Contains(t, groups, "ixtheo")
	require.Equal(t, "DE-Tue135", groups["ixtheo"].ISIL)
}

func TestLoadJournalParams(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	journals, err := cfg.JournalParams()
	require.NoError(t, err)
	require.Len(t, journals, 1)

	journal := journals[0]
	require.Equal(t, "theological review", journal.Name)
	require.Equal(t, harvester.ModeRSS, journal.Mode)
	require.Equal(t, harvester.DeliveryLive, journal.DeliveryMode)
	require.Equal(t, "1234-5678", journal.ISSN.Online)
	require.Equal(t, []string{"ger", "eng"}, journal.ExpectedLanguages)

	require.True(t, journal.SupportedURLs.MatchString("https://example.com/articles/abc"))
	require.False(t, journal.SupportedURLs.MatchString("https://other.com/x"))
	require.True(t, journal.ReviewPattern.MatchString("A Book Review of something"))
	require.Contains(t, journal.SuppressionFilters, "abstractNote")
}

func TestValidateRejectsBadMode(t *testing.T) {
	bad := `
harvester:
  translation_server_url: "http://localhost:1969"
groups:
  g: {isil: X}
journals:
  j:
    group: g
    mode: SOMETHING
    url: "https://example.com"
`
	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
	require.Contains(t, err.Error(), "mode")
}

func TestValidateRejectsUnknownGroup(t *testing.T) {
	bad := `
harvester:
  translation_server_url: "http://localhost:1969"
journals:
  j:
    group: nope
    mode: DIRECT
    url: "https://example.com"
`
	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown group")
}

func TestJournalParamsBadRegexFails(t *testing.T) {
	bad := `
harvester:
  translation_server_url: "http://localhost:1969"
groups:
  g: {isil: X}
journals:
  j:
    group: g
    mode: DIRECT
    url: "https://example.com"
    extraction_regex: "(unclosed"
`
	cfg, err := Load(writeConfig(t, bad))
	require.NoError(t, err)
	_, err = cfg.JournalParams()
	require.Error(t, err)
	require.Contains(t, err.Error(), "extraction_regex")
}

func TestMissingTranslationServerURL(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  enabled: false\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "translation_server_url")
}
