package errorlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    Kind
	}{
		{"could not parse date '31.02.2020'", KindDateFormat},
		{"Invalid date format: yesterday", KindDateFormat},
		{"unable to parse \"soon\" as a date", KindDateFormat},
		{"empty response from translation server", KindEmptyResponse},
		{"something exploded", KindUnknown},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Classify(tt.message), tt.message)
	}
}

func TestSnapshotOrdering(t *testing.T) {
	logger := New(zap.NewNop())
	logger.Log("zeitschrift b", KindParse, "https://b.example.com/1", "bad json")
	logger.Log("zeitschrift a", KindConversionFailed, "https://a.example.com/1", "boom")
	logger.Log("zeitschrift a", KindUnknown, "", "run-level failure")

	report := logger.Snapshot()
	require.True(t, report.HasErrors)
	require.Len(t, report.Journals, 2)
	require.Equal(t, "zeitschrift a", report.Journals[0].Journal)
	require.Equal(t, "zeitschrift b", report.Journals[1].Journal)

	a := report.Journals[0]
	require.Len(t, a.URLErrors, 1)
	require.Equal(t, KindConversionFailed, a.URLErrors[0].Kind)
	require.Len(t, a.OtherErrors, 1)
	require.Contains(t, a.OtherErrors[0], "ERROR-UNKNOWN")
}

func TestWriteReportAlwaysWritesFile(t *testing.T) {
	logger := New(zap.NewNop())
	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, logger.WriteReport(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var report Report
	require.NoError(t, yaml.Unmarshal(data, &report))
	require.False(t, report.HasErrors)
	require.Empty(t, report.Journals)
}

func TestAutoLogReclassifies(t *testing.T) {
	logger := New(zap.NewNop())
	logger.AutoLog("journal", "https://example.com/x", "could not parse date '13.13.2021'")

	report := logger.Snapshot()
	require.Len(t, report.Journals, 1)
	require.Equal(t, KindDateFormat, report.Journals[0].URLErrors[0].Kind)
}
