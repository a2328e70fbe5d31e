package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	journalFile          = "journal.log"
	rotatedJournalFormat = "journal-%s.log"
)

// FileLogger writes the journal as JSON lines
type FileLogger struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64 // Max file size in bytes before rotation
	maxFiles int   // Max number of rotated files to keep
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Directory of the journal files
	Rotate   bool   // Enable log rotation
	MaxSize  int64  // Max file size in bytes (default: 10MB)
	MaxFiles int    // Max number of rotated files to keep (default: 5)
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig(basePath string) FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: basePath,
		Rotate:   true,
		MaxSize:  10 * 1024 * 1024,
		MaxFiles: 5,
	}
}

// NewFileLogger creates a new file-based journal
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if logger.maxSize == 0 {
		logger.maxSize = 10 * 1024 * 1024
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 5
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

// Path returns the path of the current journal file
func (l *FileLogger) Path() string {
	return filepath.Join(l.basePath, journalFile)
}

// openLogFile opens or creates the current journal file, rotating it first when it is full
func (l *FileLogger) openLogFile() error {
	filename := l.Path()

	if l.rotate {
		if info, err := os.Stat(filename); err == nil && info.Size() >= l.maxSize {
			if err := l.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate journal file: %w", err)
			}
		}
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

func (l *FileLogger) rotateFile() error {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	timestamp := time.Now().UTC().Format("20060102T150405.000000000")
	rotated := filepath.Join(l.basePath, fmt.Sprintf(rotatedJournalFormat, timestamp))
	if err := os.Rename(l.Path(), rotated); err != nil {
		return fmt.Errorf("failed to rename journal file: %w", err)
	}

	return l.cleanupOldFiles()
}

// cleanupOldFiles removes the oldest rotated files beyond the retention limit.
// Rotated names sort chronologically.
func (l *FileLogger) cleanupOldFiles() error {
	files, err := l.rotatedFiles()
	if err != nil {
		return err
	}
	if len(files) <= l.maxFiles {
		return nil
	}
	for _, file := range files[:len(files)-l.maxFiles] {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to remove old journal %s: %w", file, err)
		}
	}
	return nil
}

func (l *FileLogger) rotatedFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.basePath, fmt.Sprintf(rotatedJournalFormat, "*")))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Log appends an event to the journal file
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("journal is closed")
	}

	if l.rotate {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
			if err := l.file.Close(); err != nil {
				return fmt.Errorf("failed to close journal file: %w", err)
			}
			l.file = nil
			if err := l.openLogFile(); err != nil {
				return err
			}
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return nil
}

// ReadLogs returns the last limit events of the current journal file, oldest first.
// A limit of zero or less returns every event.
func (l *FileLogger) ReadLogs(limit int) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer file.Close()

	var events []*Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("failed to decode journal entry: %w", err)
		}
		events = append(events, &event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal file: %w", err)
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Close closes the journal file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
