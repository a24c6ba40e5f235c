package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentboard/agentboard/internal/common/logger"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return NewStore(log)
}

func TestStore_ReadAbsentRecord(t *testing.T) {
	store := testStore(t)

	snap, err := store.Read(t.TempDir())
	require.NoError(t, err, "missing record is not an error")
	assert.Nil(t, snap)
}

func TestStore_UpdateInitializesAndMerges(t *testing.T) {
	store := testStore(t)
	dir := t.TempDir()

	running := v1.RunStatusRunning
	phase := "Execution"
	require.NoError(t, store.Update(dir, Update{Status: &running, Phase: &phase}))

	snap, err := store.Read(dir)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, v1.RunStatusRunning, snap.Status)
	assert.Equal(t, "Execution", snap.Phase)
	assert.False(t, snap.Timestamp.IsZero())

	// Partial update leaves untouched fields intact.
	msg := "working"
	require.NoError(t, store.Update(dir, Update{Message: &msg}))

	snap, err = store.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, v1.RunStatusRunning, snap.Status)
	assert.Equal(t, "Execution", snap.Phase)
	assert.Equal(t, "working", snap.Message)
}

func TestStore_ReadIsIdempotent(t *testing.T) {
	store := testStore(t)
	dir := t.TempDir()

	require.NoError(t, store.AppendLog(dir, "line one"))

	first, err := store.Read(dir)
	require.NoError(t, err)
	second, err := store.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_LogRetention(t *testing.T) {
	store := testStore(t)
	dir := t.TempDir()

	for i := 0; i < 150; i++ {
		require.NoError(t, store.Update(dir, Update{
			AppendLog: []string{fmt.Sprintf("line %d", i)},
		}))
	}

	snap, err := store.Read(dir)
	require.NoError(t, err)
	require.Len(t, snap.Log, MaxLogLines)
	assert.Equal(t, "line 50", snap.Log[0], "oldest lines dropped first")
	assert.Equal(t, "line 149", snap.Log[MaxLogLines-1])
}

func TestStore_AppendLogSkipsBlankInput(t *testing.T) {
	store := testStore(t)
	dir := t.TempDir()

	require.NoError(t, store.AppendLog(dir, ""))
	require.NoError(t, store.AppendLog(dir, "   \n"))

	snap, err := store.Read(dir)
	require.NoError(t, err)
	assert.Nil(t, snap, "blank appends must not create a record")
}

func TestStore_AppendLogWritesTranscript(t *testing.T) {
	store := testStore(t)
	dir := t.TempDir()

	require.NoError(t, store.AppendLog(dir, "first"))
	require.NoError(t, store.AppendLog(dir, "second"))

	data, err := os.ReadFile(filepath.Join(dir, TranscriptFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
	assert.Contains(t, string(data), "second")
}

func TestStore_ReportRoundTrip(t *testing.T) {
	store := testStore(t)
	dir := t.TempDir()

	written := &v1.Report{
		Success:      true,
		DurationMS:   93500,
		TotalCostUSD: 0.0217,
		NumTurns:     14,
		Model:        "claude-sonnet-4",
		Usage: v1.TokenUsage{
			InputTokens:         100,
			OutputTokens:        50,
			CacheReadTokens:     2048,
			CacheCreationTokens: 512,
		},
		Summary: "implemented the feature",
	}
	require.NoError(t, store.WriteReport(dir, written))

	read, err := store.ReadReport(dir)
	require.NoError(t, err)
	assert.Equal(t, written, read, "every field must survive the round trip exactly")

	doc, err := os.ReadFile(filepath.Join(dir, ReportDocFile))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "claude-sonnet-4")
	assert.Contains(t, string(doc), "$0.0217")
}

func TestStore_ReadReportAbsent(t *testing.T) {
	store := testStore(t)

	report, err := store.ReadReport(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, report, "a failed run legitimately has no report")
}

func TestStore_ReadTranscriptOffsets(t *testing.T) {
	store := testStore(t)
	dir := t.TempDir()

	text, offset, err := store.ReadTranscript(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, "", text)
	assert.Equal(t, int64(0), offset)

	require.NoError(t, store.AppendLog(dir, "alpha"))
	text, offset, err = store.ReadTranscript(dir, 0)
	require.NoError(t, err)
	assert.Contains(t, text, "alpha")

	require.NoError(t, store.AppendLog(dir, "beta"))
	text, _, err = store.ReadTranscript(dir, offset)
	require.NoError(t, err)
	assert.Contains(t, text, "beta")
	assert.NotContains(t, text, "alpha", "only appended text is returned")
}
