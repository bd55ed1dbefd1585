package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrLoggerClosed is returned by Enqueue after Shutdown.
var ErrLoggerClosed = errors.New("request logger is closed")

// RequestLoggerConfig configures a RequestLogger.
type RequestLoggerConfig struct {
	// FileTemplate is the log file path with one %s for the rotation
	// timestamp, e.g. "/var/log/tutor/chat-%s.jsonl"
	FileTemplate  string
	MaxSize       int64 // bytes before rotation
	MaxFiles      int   // rotated files to keep
	BufferSize    int   // queued records before new ones are dropped
	FlushInterval time.Duration
}

// RequestLogger writes chat log records as JSON lines asynchronously, with
// size-based rotation and periodic flush.
type RequestLogger struct {
	fileTemplate  string
	maxSize       int64
	maxFiles      int
	flushInterval time.Duration

	mu          sync.Mutex
	currentFile string // current active file name (populated from fileTemplate)
	file        *os.File
	writer      *bufio.Writer
	currentSize int64
	dropped     int64

	logCh  chan *ChatLogRecord
	doneCh chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewRequestLogger opens the first log file and starts the writer goroutine.
func NewRequestLogger(cfg RequestLoggerConfig) (*RequestLogger, error) {
	if cfg.FileTemplate == "" {
		return nil, fmt.Errorf("file template is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10 * 1024 * 1024
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	logger := &RequestLogger{
		fileTemplate:  cfg.FileTemplate,
		maxSize:       cfg.MaxSize,
		maxFiles:      cfg.MaxFiles,
		flushInterval: cfg.FlushInterval,
		logCh:         make(chan *ChatLogRecord, cfg.BufferSize),
		doneCh:        make(chan struct{}),
	}

	if err := logger.openFile(); err != nil {
		return nil, err
	}

	logger.wg.Add(1)
	go logger.run()

	return logger, nil
}

// newFileName applies the current timestamp to the file template.
func (logger *RequestLogger) newFileName() string {
	timestamp := time.Now().Format("20060102150405.000000")
	return fmt.Sprintf(logger.fileTemplate, timestamp)
}

// openFile opens (or creates) the active log file, creating its directory
// when needed. Callers hold mu or own the logger exclusively.
func (logger *RequestLogger) openFile() error {
	logger.currentFile = logger.newFileName()
	dir := filepath.Dir(logger.currentFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(logger.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	logger.currentSize = fi.Size()
	logger.file = file
	logger.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded starts a new file when n more bytes would exceed maxSize.
// It reports whether a rotation happened.
func (logger *RequestLogger) rotateIfNeeded(n int) (bool, error) {
	if logger.currentSize == 0 || logger.currentSize+int64(n) < logger.maxSize {
		return false, nil
	}

	if err := logger.writer.Flush(); err != nil {
		return false, err
	}
	if err := logger.file.Close(); err != nil {
		return false, err
	}
	return true, logger.openFile()
}

// cleanupOldFiles removes the oldest rotated files beyond maxFiles.
func (logger *RequestLogger) cleanupOldFiles() error {
	pattern := fmt.Sprintf(logger.fileTemplate, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	// Timestamps in the name sort chronologically
	sort.Strings(matches)

	excess := len(matches) - logger.maxFiles
	for i := 0; i < excess; i++ {
		if matches[i] == logger.currentFile {
			continue
		}
		_ = os.Remove(matches[i])
	}
	return nil
}

func (logger *RequestLogger) run() {
	defer logger.wg.Done()
	ticker := time.NewTicker(logger.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-logger.logCh:
			logger.writeRecord(rec)
		case <-ticker.C:
			logger.mu.Lock()
			_ = logger.writer.Flush()
			logger.mu.Unlock()
		case <-logger.doneCh:
			for {
				select {
				case rec := <-logger.logCh:
					logger.writeRecord(rec)
				default:
					logger.mu.Lock()
					_ = logger.writer.Flush()
					_ = logger.file.Close()
					logger.mu.Unlock()
					return
				}
			}
		}
	}
}

func (logger *RequestLogger) writeRecord(rec *ChatLogRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		Errorf("request logger: failed to marshal record: %v", err)
		return
	}
	data = append(data, '\n')

	logger.mu.Lock()
	defer logger.mu.Unlock()

	rotated, err := logger.rotateIfNeeded(len(data))
	if err != nil {
		Errorf("request logger: rotation failed: %v", err)
		return
	}
	_, _ = logger.writer.Write(data)
	logger.currentSize += int64(len(data))

	if rotated {
		_ = logger.cleanupOldFiles()
	}
}

// Enqueue queues rec for writing. When the buffer is full the record is
// dropped and counted.
func (logger *RequestLogger) Enqueue(rec *ChatLogRecord) error {
	logger.mu.Lock()
	defer logger.mu.Unlock()

	if logger.closed {
		return ErrLoggerClosed
	}

	select {
	case logger.logCh <- rec:
	default:
		logger.dropped++
	}
	return nil
}

// Dropped returns how many records were discarded because the buffer was full.
func (logger *RequestLogger) Dropped() int64 {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return logger.dropped
}

// CurrentFile returns the path of the file being written.
func (logger *RequestLogger) CurrentFile() string {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return logger.currentFile
}

// Shutdown flushes queued records and closes the file. It returns
// ctx.Err() if the flush does not finish in time.
func (logger *RequestLogger) Shutdown(ctx context.Context) error {
	logger.mu.Lock()
	if logger.closed {
		logger.mu.Unlock()
		return nil
	}
	logger.closed = true
	logger.mu.Unlock()

	close(logger.doneCh)

	done := make(chan struct{})
	go func() {
		logger.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
