// Package dlq implements a dead letter queue for records a sink failed to
// deliver: failed writes are journaled to disk as JSON lines so they can be
// inspected or reprocessed instead of being silently dropped.
package dlq

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config configures a dead letter queue.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	Directory     string        `yaml:"directory"`
	QueueSize     int           `yaml:"queue_size"`
	MaxFiles      int           `yaml:"max_files"`
	MaxFileSize   int64         `yaml:"max_file_size_mb"`
	RetentionDays int           `yaml:"retention_days"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Entry is one failed delivery: the original record (kept as raw JSON so the
// queue doesn't need to know about any particular record type), the failure
// reason, and enough context to retry it later.
type Entry struct {
	Timestamp     time.Time       `json:"timestamp"`
	EntryID       string          `json:"entry_id"`
	OriginalValue json.RawMessage `json:"original_value"`
	ErrorMessage  string          `json:"error_message"`
	ErrorType     string          `json:"error_type"`
	FailedSink    string          `json:"failed_sink"`
	RetryCount    int             `json:"retry_count"`
	Context       map[string]string `json:"context,omitempty"`
}

// Stats tracks the dead letter queue's activity.
type Stats struct {
	TotalEntries     int64     `json:"total_entries"`
	EntriesWritten   int64     `json:"entries_written"`
	WriteErrors      int64     `json:"write_errors"`
	CurrentQueueSize int       `json:"current_queue_size"`
	FilesCreated     int64     `json:"files_created"`
	LastFlush        time.Time `json:"last_flush"`
}

// DeadLetterQueue journals failed records to rotating JSON-lines files.
type DeadLetterQueue struct {
	config Config
	logger *logrus.Logger

	queue chan Entry
	file  *os.File
	mu    sync.RWMutex
	stats Stats

	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	wg        sync.WaitGroup
}

// NewDeadLetterQueue constructs a DLQ from config, filling in defaults.
func NewDeadLetterQueue(config Config, logger *logrus.Logger) *DeadLetterQueue {
	ctx, cancel := context.WithCancel(context.Background())

	if config.QueueSize == 0 {
		config.QueueSize = 10000
	}
	if config.MaxFiles == 0 {
		config.MaxFiles = 10
	}
	if config.MaxFileSize == 0 {
		config.MaxFileSize = 100
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 7
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 30 * time.Second
	}
	if config.Directory == "" {
		config.Directory = "./dlq"
	}

	return &DeadLetterQueue{
		config: config,
		logger: logger,
		queue:  make(chan Entry, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start opens the DLQ's active file and begins the background flush loop.
func (d *DeadLetterQueue) Start() error {
	if !d.config.Enabled {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isRunning {
		return nil
	}

	if err := os.MkdirAll(d.config.Directory, 0o755); err != nil {
		return fmt.Errorf("dlq: create directory: %w", err)
	}

	f, err := d.openActiveFile()
	if err != nil {
		return err
	}
	d.file = f
	d.isRunning = true

	d.wg.Add(1)
	go d.writeLoop()

	d.logger.WithField("directory", d.config.Directory).Info("dead letter queue started")
	return nil
}

// Stop drains and closes the DLQ.
func (d *DeadLetterQueue) Stop() error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// AddValue enqueues a failed record for journaling. value is marshaled to
// JSON for storage; callers pass whatever record type they hold.
func (d *DeadLetterQueue) AddValue(value any, errorMsg, errorType, failedSink string, retryCount int, ctx map[string]string) error {
	if !d.config.Enabled {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("dlq: marshal original value: %w", err)
	}

	entry := Entry{
		Timestamp:     time.Now(),
		EntryID:       fmt.Sprintf("%d-%s", time.Now().UnixNano(), failedSink),
		OriginalValue: raw,
		ErrorMessage:  errorMsg,
		ErrorType:     errorType,
		FailedSink:    failedSink,
		RetryCount:    retryCount,
		Context:       ctx,
	}

	select {
	case d.queue <- entry:
		d.mu.Lock()
		d.stats.TotalEntries++
		d.stats.CurrentQueueSize = len(d.queue)
		d.mu.Unlock()
		return nil
	default:
		d.mu.Lock()
		d.stats.WriteErrors++
		d.mu.Unlock()
		return fmt.Errorf("dlq: queue full, dropping entry for sink %s", failedSink)
	}
}

func (d *DeadLetterQueue) writeLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.drainQueue()
			return
		case entry := <-d.queue:
			d.writeEntry(entry)
		case <-ticker.C:
			d.rotateIfNeeded()
		}
	}
}

func (d *DeadLetterQueue) drainQueue() {
	for {
		select {
		case entry := <-d.queue:
			d.writeEntry(entry)
		default:
			return
		}
	}
}

func (d *DeadLetterQueue) writeEntry(entry Entry) {
	line, err := json.Marshal(entry)
	if err != nil {
		d.logger.WithError(err).Error("dlq: failed to marshal entry")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return
	}

	if _, err := d.file.Write(append(line, '\n')); err != nil {
		d.logger.WithError(err).Error("dlq: failed to write entry")
		d.stats.WriteErrors++
		return
	}

	d.stats.EntriesWritten++
	d.stats.CurrentQueueSize = len(d.queue)
	d.stats.LastFlush = time.Now()
}

func (d *DeadLetterQueue) rotateIfNeeded() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return
	}

	info, err := d.file.Stat()
	if err != nil {
		return
	}

	maxBytes := d.config.MaxFileSize * 1024 * 1024
	if info.Size() < maxBytes {
		return
	}

	d.file.Close()
	f, err := d.openActiveFile()
	if err != nil {
		d.logger.WithError(err).Error("dlq: failed to rotate file")
		return
	}
	d.file = f
	d.stats.FilesCreated++

	d.pruneOldFiles()
}

func (d *DeadLetterQueue) openActiveFile() (*os.File, error) {
	name := filepath.Join(d.config.Directory, fmt.Sprintf("dlq-%d.jsonl", time.Now().UnixNano()))
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (d *DeadLetterQueue) pruneOldFiles() {
	entries, err := os.ReadDir(d.config.Directory)
	if err != nil {
		return
	}
	if len(entries) <= d.config.MaxFiles {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -d.config.RetentionDays)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(d.config.Directory, e.Name()))
		}
	}
}

// GetStats returns a snapshot of DLQ activity.
func (d *DeadLetterQueue) GetStats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

// ReadEntries replays every journaled entry across all DLQ files, in
// creation order, invoking fn for each. Used to reprocess or inspect failed
// records outside the running process.
func (d *DeadLetterQueue) ReadEntries(fn func(Entry) error) error {
	files, err := filepath.Glob(filepath.Join(d.config.Directory, "dlq-*.jsonl"))
	if err != nil {
		return err
	}

	for _, path := range files {
		if err := readEntriesFromFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func readEntriesFromFile(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return scanner.Err()
}
