package sinks

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"synthledger/internal/metrics"
	"synthledger/pkg/compression"
	"synthledger/pkg/types"

	"github.com/sirupsen/logrus"
)

// RotationConfig governs when and how local output files are rotated.
type RotationConfig struct {
	MaxSizeMB int  `yaml:"max_size_mb"`
	MaxFiles  int  `yaml:"max_files"`
	Compress  bool `yaml:"compress"`
}

// LocalFileConfig configures the local file sink.
type LocalFileConfig struct {
	Enabled                  bool   `yaml:"enabled"`
	Directory                string `yaml:"directory"`
	FilenamePattern          string `yaml:"filename_pattern"`
	Compress                 bool   `yaml:"compress"`
	QueueSize                int    `yaml:"queue_size"`
	WorkerCount              int    `yaml:"worker_count"`
	MaxOpenFiles             int    `yaml:"max_open_files"`
	MaxTotalDiskGB           float64 `yaml:"max_total_disk_gb"`
	DiskCheckInterval        string `yaml:"disk_check_interval"`
	CleanupThresholdPercent  float64 `yaml:"cleanup_threshold_percent"`
	EmergencyCleanupEnabled  bool   `yaml:"emergency_cleanup_enabled"`
	Rotation                 RotationConfig `yaml:"rotation"`
}

// LocalFileSink writes generated records to rotating JSON-lines files, one
// per record type and posting date, with disk-space guards and a bounded set of open file
// descriptors.
type LocalFileSink struct {
	config     LocalFileConfig
	logger     *logrus.Logger
	compressor *compression.HTTPCompressor

	queue      chan types.Record
	files      map[string]*logFile
	filesMutex sync.RWMutex

	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	mutex     sync.RWMutex

	lastDiskCheck  time.Time
	diskSpaceMutex sync.RWMutex

	maxOpenFiles  int
	openFileCount int

	itemsProcessed uint64
	itemsMutex     sync.Mutex
}

// logFile is one open output file.
type logFile struct {
	path           string
	file           *os.File
	writer         io.Writer
	currentSize    int64
	lastWrite      time.Time
	mutex          sync.Mutex
	useCompression bool
	compressor     *compression.HTTPCompressor
}

// NewLocalFileSink constructs a local file sink from config, filling in
// defaults for the queue size, worker count, disk limits and check
// interval, cleanup threshold and open-file cap.
func NewLocalFileSink(config LocalFileConfig, logger *logrus.Logger) *LocalFileSink {
	ctx, cancel := context.WithCancel(context.Background())

	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 3000
	}
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 3
	}

	logger.WithFields(logrus.Fields{
		"queue_size":   queueSize,
		"worker_count": workerCount,
	}).Info("initializing local file sink")

	if config.MaxTotalDiskGB <= 0 {
		config.MaxTotalDiskGB = 5.0
	}
	if config.DiskCheckInterval == "" {
		config.DiskCheckInterval = "60s"
	}
	if config.CleanupThresholdPercent <= 0 {
		config.CleanupThresholdPercent = 90.0
	}

	maxOpenFiles := 100
	if config.MaxOpenFiles > 0 {
		maxOpenFiles = config.MaxOpenFiles
	}

	compressionConfig := compression.Config{
		DefaultAlgorithm: compression.AlgorithmGzip,
		MinBytes:         512,
		Level:            6,
		PoolSize:         5,
		PerSink: map[string]compression.SinkCompressionConfig{
			"local_file": {
				Algorithm: compression.AlgorithmAuto,
				Enabled:   config.Compress,
				Level:     6,
			},
		},
	}
	compressor := compression.NewHTTPCompressor(compressionConfig, logger)

	return &LocalFileSink{
		config:       config,
		logger:       logger,
		compressor:   compressor,
		queue:        make(chan types.Record, queueSize),
		files:        make(map[string]*logFile),
		ctx:          ctx,
		cancel:       cancel,
		maxOpenFiles: maxOpenFiles,
	}
}

// Start begins the write workers, the disk monitor, and the rotation loop.
func (lfs *LocalFileSink) Start(ctx context.Context) error {
	if !lfs.config.Enabled {
		lfs.logger.Info("local file sink disabled")
		return nil
	}

	lfs.mutex.Lock()
	defer lfs.mutex.Unlock()

	if lfs.isRunning {
		return fmt.Errorf("local file sink already running")
	}

	if err := os.MkdirAll(lfs.config.Directory, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	lfs.isRunning = true
	metrics.SetComponentHealth("local_file_sink", true)

	workerCount := lfs.config.WorkerCount
	if workerCount <= 0 {
		workerCount = 3
	}
	for i := 0; i < workerCount; i++ {
		go lfs.processLoop(i)
	}

	go lfs.diskMonitorLoop()
	go lfs.rotationLoop()

	lfs.logger.WithField("worker_count", workerCount).Info("local file sink started")
	return nil
}

// Stop closes open files and halts the background loops.
func (lfs *LocalFileSink) Stop() error {
	lfs.mutex.Lock()
	defer lfs.mutex.Unlock()

	if !lfs.isRunning {
		return nil
	}
	lfs.isRunning = false
	metrics.SetComponentHealth("local_file_sink", false)

	lfs.cancel()

	lfs.filesMutex.Lock()
	for _, lf := range lfs.files {
		lf.close()
	}
	lfs.files = make(map[string]*logFile)
	lfs.filesMutex.Unlock()

	return nil
}

// Close satisfies types.Sink.
func (lfs *LocalFileSink) Close() error { return lfs.Stop() }

// ItemsProcessed satisfies types.Sink.
func (lfs *LocalFileSink) ItemsProcessed() uint64 {
	lfs.itemsMutex.Lock()
	defer lfs.itemsMutex.Unlock()
	return lfs.itemsProcessed
}

// Flush is a no-op: each write is flushed immediately.
func (lfs *LocalFileSink) Flush() error { return nil }

// Process consumes one stream event, queuing data records for disk write.
func (lfs *LocalFileSink) Process(event types.StreamEvent[types.Record]) error {
	if !lfs.config.Enabled || event.Kind != types.EventData {
		return nil
	}

	select {
	case lfs.queue <- event.Data:
		return nil
	case <-lfs.ctx.Done():
		return fmt.Errorf("local file sink stopped: %w", lfs.ctx.Err())
	}
}

func (lfs *LocalFileSink) closeLeastRecentlyUsed() {
	var oldestPath string
	var oldestTime time.Time
	first := true

	for path, lf := range lfs.files {
		lf.mutex.Lock()
		lastWrite := lf.lastWrite
		lf.mutex.Unlock()

		if first || lastWrite.Before(oldestTime) {
			oldestPath, oldestTime, first = path, lastWrite, false
		}
	}

	if oldestPath != "" {
		if lf, exists := lfs.files[oldestPath]; exists {
			lf.close()
			delete(lfs.files, oldestPath)
			lfs.openFileCount--
		}
	}
}

// IsHealthy reports whether the sink is currently running.
func (lfs *LocalFileSink) IsHealthy() bool {
	lfs.mutex.RLock()
	defer lfs.mutex.RUnlock()
	return lfs.isRunning
}

// GetQueueUtilization returns the write queue's current occupancy fraction.
func (lfs *LocalFileSink) GetQueueUtilization() float64 {
	return float64(len(lfs.queue)) / float64(cap(lfs.queue))
}

func (lfs *LocalFileSink) processLoop(workerID int) {
	for {
		select {
		case <-lfs.ctx.Done():
			return
		case record := <-lfs.queue:
			lfs.writeRecord(record)
		}
	}
}

func (lfs *LocalFileSink) rotationLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-lfs.ctx.Done():
			return
		case <-ticker.C:
			lfs.rotateFiles()
		}
	}
}

func (lfs *LocalFileSink) writeRecord(record types.Record) {
	if !lfs.isDiskSpaceAvailable() {
		lfs.logger.WithField("record_type", record.RecordType()).Error("dropping record, insufficient disk space")
		metrics.RecordError("local_file_sink", "disk_full")
		lfs.performEmergencyCleanup()
		if !lfs.isDiskSpaceAvailable() {
			metrics.RecordError("local_file_sink", "disk_full_after_cleanup")
			return
		}
	}

	start := time.Now()
	filename := lfs.getFileName(record)

	lf, err := lfs.getOrCreateLogFile(filename)
	if err != nil {
		lfs.logger.WithError(err).WithField("filename", filename).Error("failed to get output file")
		metrics.RecordSent("local_file", "error")
		metrics.RecordError("local_file_sink", "file_error")
		return
	}

	if err := lf.writeEntry(record); err != nil {
		lfs.logger.WithError(err).WithField("filename", filename).Error("failed to write record")
		metrics.RecordSent("local_file", "error")
		metrics.RecordError("local_file_sink", "write_error")
		return
	}

	lfs.itemsMutex.Lock()
	lfs.itemsProcessed++
	lfs.itemsMutex.Unlock()

	metrics.ObserveSinkSendDuration("local_file", time.Since(start))
	metrics.RecordSent("local_file", "success")
}

// getFileName partitions output files by record type and posting date.
func (lfs *LocalFileSink) getFileName(record types.Record) string {
	date := record.PostingDate().Format("2006-01-02")
	name := fmt.Sprintf("%s_%s.jsonl", date, sanitizeFilename(record.RecordType()))
	return filepath.Join(lfs.config.Directory, name)
}

func (lfs *LocalFileSink) getOrCreateLogFile(filename string) (*logFile, error) {
	lfs.filesMutex.RLock()
	lf, exists := lfs.files[filename]
	lfs.filesMutex.RUnlock()
	if exists {
		return lf, nil
	}

	lfs.filesMutex.Lock()
	defer lfs.filesMutex.Unlock()

	if lf, exists := lfs.files[filename]; exists {
		return lf, nil
	}

	if lfs.openFileCount >= lfs.maxOpenFiles {
		lfs.closeLeastRecentlyUsed()
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat output file: %w", err)
	}

	lf = &logFile{
		path:           filename,
		file:           file,
		writer:         file,
		currentSize:    info.Size(),
		lastWrite:      time.Now(),
		useCompression: lfs.config.Compress,
		compressor:     lfs.compressor,
	}

	lfs.files[filename] = lf
	lfs.openFileCount++
	return lf, nil
}

func (lfs *LocalFileSink) rotateFiles() {
	lfs.filesMutex.Lock()
	defer lfs.filesMutex.Unlock()

	var toRotate []string
	maxSizeBytes := int64(lfs.config.Rotation.MaxSizeMB) * 1024 * 1024

	for filename, lf := range lfs.files {
		lf.mutex.Lock()
		if lf.currentSize > maxSizeBytes {
			toRotate = append(toRotate, filename)
		}
		lf.mutex.Unlock()
	}

	for _, filename := range toRotate {
		if lf, exists := lfs.files[filename]; exists {
			lf.close()
			if err := lfs.rotateFile(filename); err != nil {
				lfs.logger.WithError(err).WithField("filename", filename).Error("failed to rotate output file")
			}

			delete(lfs.files, filename)
			lfs.openFileCount--
		}
	}

	lfs.cleanupOldFiles()
}

func (lfs *LocalFileSink) rotateFile(filename string) error {
	timestamp := time.Now().Format("20060102-150405")
	rotated := filename + "." + timestamp

	if lfs.config.Rotation.Compress {
		rotated += ".gz"
		return lfs.compressFile(filename, rotated)
	}
	return os.Rename(filename, rotated)
}

func (lfs *LocalFileSink) compressFile(srcFile, dstFile string) error {
	src, err := os.Open(srcFile)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dstFile)
	if err != nil {
		return fmt.Errorf("failed to create compressed file: %w", err)
	}
	defer dst.Close()

	gzWriter := gzip.NewWriter(dst)
	defer gzWriter.Close()

	if _, err := io.Copy(gzWriter, src); err != nil {
		return fmt.Errorf("failed to compress file: %w", err)
	}

	if err := os.Remove(srcFile); err != nil {
		lfs.logger.WithError(err).WithField("filename", srcFile).Warn("failed to remove original file after compression")
	}
	return nil
}

func (lfs *LocalFileSink) cleanupOldFiles() {
	files, err := filepath.Glob(filepath.Join(lfs.config.Directory, "*.jsonl*"))
	if err != nil {
		lfs.logger.WithError(err).Error("failed to list output files for cleanup")
		return
	}
	if len(files) <= lfs.config.Rotation.MaxFiles {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}

	var infos []fileInfo
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{path: file, modTime: info.ModTime()})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].modTime.Before(infos[j].modTime) })

	toRemove := len(infos) - lfs.config.Rotation.MaxFiles
	for i := 0; i < toRemove; i++ {
		if err := os.Remove(infos[i].path); err != nil {
			lfs.logger.WithError(err).WithField("filename", infos[i].path).Error("failed to remove old output file")
		}
	}
}

func (lf *logFile) writeEntry(record types.Record) error {
	lf.mutex.Lock()
	defer lf.mutex.Unlock()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	var dataToWrite []byte
	if lf.useCompression && lf.compressor != nil {
		result, err := lf.compressor.Compress(line, compression.AlgorithmAuto, "local_file")
		if err != nil {
			dataToWrite = line
		} else {
			dataToWrite = result.Data
		}
	} else {
		dataToWrite = line
	}

	n, err := lf.writer.Write(dataToWrite)
	if err != nil {
		return err
	}

	lf.currentSize += int64(n)
	lf.lastWrite = time.Now()

	if flusher, ok := lf.writer.(interface{ Flush() error }); ok {
		flusher.Flush()
	}
	return nil
}

func (lf *logFile) close() {
	lf.mutex.Lock()
	defer lf.mutex.Unlock()
	if lf.file != nil {
		lf.file.Close()
		lf.file = nil
	}
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	return replacer.Replace(name)
}

func (lfs *LocalFileSink) diskMonitorLoop() {
	interval, err := time.ParseDuration(lfs.config.DiskCheckInterval)
	if err != nil {
		interval = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-lfs.ctx.Done():
			return
		case <-ticker.C:
			lfs.checkDiskSpaceAndCleanup()
		}
	}
}

func (lfs *LocalFileSink) checkDiskSpaceAndCleanup() {
	lfs.diskSpaceMutex.Lock()
	defer lfs.diskSpaceMutex.Unlock()

	var stat syscall.Statfs_t
	if err := syscall.Statfs(lfs.config.Directory, &stat); err != nil {
		lfs.logger.WithError(err).Error("failed to check disk space")
		return
	}

	totalBytes := stat.Blocks * uint64(stat.Bsize)
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	usagePercent := float64(totalBytes-freeBytes) / float64(totalBytes) * 100
	dirSizeGB := lfs.getDirSizeGB(lfs.config.Directory)

	needsCleanup := usagePercent >= lfs.config.CleanupThresholdPercent || dirSizeGB >= lfs.config.MaxTotalDiskGB
	if needsCleanup && lfs.config.EmergencyCleanupEnabled {
		lfs.logger.WithFields(logrus.Fields{
			"disk_usage_percent": usagePercent,
			"dir_size_gb":        dirSizeGB,
		}).Warn("emergency cleanup triggered")
		lfs.performEmergencyCleanup()
	}

	lfs.lastDiskCheck = time.Now()
}

func (lfs *LocalFileSink) getDirSizeGB(dirPath string) float64 {
	var totalSize int64
	filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	return float64(totalSize) / (1024 * 1024 * 1024)
}

func (lfs *LocalFileSink) performEmergencyCleanup() {
	files, err := filepath.Glob(filepath.Join(lfs.config.Directory, "*.jsonl*"))
	if err != nil {
		lfs.logger.WithError(err).Error("failed to list output files for cleanup")
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
		size    int64
	}

	var infos []fileInfo
	for _, file := range files {
		stat, err := os.Stat(file)
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{path: file, modTime: stat.ModTime(), size: stat.Size()})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].modTime.Before(infos[j].modTime) })

	var removed int
	for _, info := range infos {
		if time.Since(info.modTime) < time.Hour {
			continue
		}
		if err := os.Remove(info.path); err != nil {
			continue
		}
		removed++
		if removed >= 10 {
			break
		}
	}

	lfs.logger.WithField("removed_files", removed).Info("emergency cleanup completed")
}

func (lfs *LocalFileSink) isDiskSpaceAvailable() bool {
	lfs.diskSpaceMutex.RLock()
	lastCheck := lfs.lastDiskCheck
	lfs.diskSpaceMutex.RUnlock()

	if time.Since(lastCheck) > 5*time.Minute {
		lfs.checkDiskSpaceAndCleanup()
	}

	lfs.diskSpaceMutex.RLock()
	defer lfs.diskSpaceMutex.RUnlock()

	var stat syscall.Statfs_t
	if err := syscall.Statfs(lfs.config.Directory, &stat); err != nil {
		return false
	}

	totalBytes := stat.Blocks * uint64(stat.Bsize)
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	usagePercent := float64(totalBytes-freeBytes) / float64(totalBytes) * 100

	return usagePercent <= 95.0
}
