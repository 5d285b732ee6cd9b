package dlq

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestDLQ_AddValue_Success(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_add_success")
	require.NoError(t, os.MkdirAll(tempDir, 0o755))
	defer os.RemoveAll(tempDir)

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   1024,
		MaxFiles:      5,
		RetentionDays: 7,
		FlushInterval: 50 * time.Millisecond,
		QueueSize:     100,
	}

	queue := NewDeadLetterQueue(config, newTestLogger())
	require.NotNil(t, queue)
	require.NoError(t, queue.Start())
	defer queue.Stop()

	record := testRecord{ID: "je-001", Kind: "journal_entry"}
	err := queue.AddValue(record, "kafka publish failed", "send_error", "kafka_sink", 1, map[string]string{"retry_count": "1"})
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	stats := queue.GetStats()
	assert.Equal(t, int64(1), stats.TotalEntries)
	assert.Equal(t, int64(1), stats.EntriesWritten)

	files, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Greater(t, len(files), 0)
}

func TestDLQ_AddValue_Concurrent(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_concurrent_add")
	require.NoError(t, os.MkdirAll(tempDir, 0o755))
	defer os.RemoveAll(tempDir)

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   10240,
		MaxFiles:      5,
		RetentionDays: 7,
		FlushInterval: 50 * time.Millisecond,
		QueueSize:     1000,
	}

	queue := NewDeadLetterQueue(config, newTestLogger())
	require.NoError(t, queue.Start())
	defer queue.Stop()

	var wg sync.WaitGroup
	const goroutines, perGoroutine = 50, 5

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				record := testRecord{ID: fmt.Sprintf("%d-%d", id, j), Kind: "ap_document"}
				_ = queue.AddValue(record, "concurrent test error", "concurrent_test", "test_sink", 0, nil)
			}
		}(i)
	}
	wg.Wait()

	time.Sleep(300 * time.Millisecond)

	stats := queue.GetStats()
	assert.Greater(t, stats.TotalEntries, int64(0))
}

func TestDLQ_FileRotation(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_rotation")
	require.NoError(t, os.MkdirAll(tempDir, 0o755))
	defer os.RemoveAll(tempDir)

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   1, // 1MB, small on purpose
		MaxFiles:      5,
		RetentionDays: 7,
		FlushInterval: 20 * time.Millisecond,
		QueueSize:     200,
	}

	queue := NewDeadLetterQueue(config, newTestLogger())
	require.NoError(t, queue.Start())
	defer queue.Stop()

	big := make([]byte, 12000)
	for i := range big {
		big[i] = 'x'
	}

	for i := 0; i < 100; i++ {
		record := testRecord{ID: fmt.Sprintf("rec-%d", i), Kind: string(big)}
		require.NoError(t, queue.AddValue(record, "rotation test", "rotation_test", "test_sink", 0, nil))
	}

	time.Sleep(500 * time.Millisecond)

	files, err := filepath.Glob(filepath.Join(tempDir, "dlq-*.jsonl"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(files), 2)
}

func TestDLQ_ReadEntries(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_read")
	require.NoError(t, os.MkdirAll(tempDir, 0o755))
	defer os.RemoveAll(tempDir)

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   1024,
		MaxFiles:      5,
		RetentionDays: 7,
		FlushInterval: 20 * time.Millisecond,
		QueueSize:     100,
	}

	queue := NewDeadLetterQueue(config, newTestLogger())
	require.NoError(t, queue.Start())

	for i := 0; i < 5; i++ {
		record := testRecord{ID: fmt.Sprintf("rec-%d", i), Kind: "journal_entry"}
		require.NoError(t, queue.AddValue(record, "send failed", "send_error", "kafka_sink", 0, nil))
	}
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, queue.Stop())

	var count int
	err := queue.ReadEntries(func(e Entry) error {
		count++
		assert.Equal(t, "send_error", e.ErrorType)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestDLQ_Disabled(t *testing.T) {
	config := Config{Enabled: false}
	queue := NewDeadLetterQueue(config, newTestLogger())
	require.NotNil(t, queue)

	err := queue.AddValue(testRecord{ID: "x"}, "test error", "test_type", "test_sink", 1, nil)
	assert.NoError(t, err)

	require.NoError(t, queue.Start())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, queue.Stop())

	stats := queue.GetStats()
	assert.Equal(t, int64(0), stats.TotalEntries)
}

func TestDLQ_QueueFull(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_queue_full")
	require.NoError(t, os.MkdirAll(tempDir, 0o755))
	defer os.RemoveAll(tempDir)

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   1024,
		MaxFiles:      5,
		RetentionDays: 7,
		FlushInterval: 5 * time.Second, // only paces rotation checks; entries are written as they arrive
		QueueSize:     3,
	}

	queue := NewDeadLetterQueue(config, newTestLogger())
	require.NoError(t, queue.Start())
	defer queue.Stop()

	successCount, failCount := 0, 0
	for i := 0; i < 10; i++ {
		record := testRecord{ID: fmt.Sprintf("rec-%d", i)}
		if err := queue.AddValue(record, "overflow test", "overflow_test", "test_sink", 1, nil); err != nil {
			failCount++
		} else {
			successCount++
		}
	}

	assert.Greater(t, successCount, 0)
	t.Logf("accepted=%d rejected=%d", successCount, failCount)
}
