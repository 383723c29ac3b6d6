package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/record"
)

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	fileSink, err := NewFileSink(path, zap.NewNop())
	require.NoError(t, err)

	for _, id := range []string{"group#2023-05-01#aaa", "group#2023-05-01#bbb"} {
		var rec record.Record
		rec.AppendControl(record.TagRecordID, id)
		rec.Append("245", record.Subfield{Code: 'a', Value: "Title for " + id})
		require.NoError(t, fileSink.Write(context.Background(), &rec))
	}
	require.NoError(t, fileSink.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var lines int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec record.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		require.NotNil(t, rec.First(record.TagRecordID))
		lines++
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, 2, lines)
}

func TestMemorySink(t *testing.T) {
	memSink := NewMemorySink()
	var rec record.Record
	rec.AppendControl(record.TagRecordID, "x")
	require.NoError(t, memSink.Write(context.Background(), &rec))
	require.Len(t, memSink.Records(), 1)
}
