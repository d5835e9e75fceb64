package engine

// The journal is an append-only, human-readable record of every committed
// write. It is diagnostic only: the store never replays it.

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// JournalEntry is a single committed write.
type JournalEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Op         string    `json:"op"`
	Collection string    `json:"collection"`
	Key        string    `json:"key"`
}

// Journal writes entries to one file per day, rolling to a numbered file
// when the current one exceeds maxFileSize.
type Journal struct {
	mu            sync.Mutex
	file          *os.File
	baseFilePath  string
	currentDate   time.Time
	currentPart   int
	currentSize   int64
	maxFileSize   int64
	retentionDays int
	now           func() time.Time
}

// NewJournal opens today's journal file under journalFilePath's directory.
// maxFileSize <= 0 disables rollover, retentionDays <= 0 disables cleanup.
func NewJournal(journalFilePath string, maxFileSize int64, retentionDays int) (*Journal, error) {
	journal := &Journal{
		baseFilePath:  getBaseFilePath(journalFilePath),
		maxFileSize:   maxFileSize,
		retentionDays: retentionDays,
		now:           time.Now,
	}
	journal.mu.Lock()
	defer journal.mu.Unlock()
	if err := journal.ensureCorrectFileOpen(); err != nil {
		return nil, err
	}
	return journal, nil
}

var datePattern = regexp.MustCompile(`_\d{4}-\d{2}-\d{2}(_\d+)?$`)

// getBaseFilePath strips the extension and any date suffix.
func getBaseFilePath(journalFilePath string) string {
	dir := filepath.Dir(journalFilePath)
	baseName := strings.TrimSuffix(filepath.Base(journalFilePath), filepath.Ext(journalFilePath))
	baseName = datePattern.ReplaceAllString(baseName, "")
	return filepath.Join(dir, baseName)
}

func (j *Journal) fileName(date time.Time, part int) string {
	if part == 0 {
		return fmt.Sprintf("%s_%s.journal", j.baseFilePath, date.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s_%s_%d.journal", j.baseFilePath, date.Format("2006-01-02"), part)
}

// ensureCorrectFileOpen switches files on a new day or once the size limit
// is reached. Callers hold j.mu.
func (j *Journal) ensureCorrectFileOpen() error {
	today := j.now().Truncate(24 * time.Hour)
	rollover := j.maxFileSize > 0 && j.currentSize >= j.maxFileSize

	if j.file != nil && j.currentDate.Equal(today) && !rollover {
		return nil
	}

	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close previous journal file: %w", err)
		}
		j.file = nil
	}

	switch {
	case !j.currentDate.Equal(today):
		j.currentPart = 0
	case rollover:
		j.currentPart++
	}

	fileName := j.fileName(today, j.currentPart)
	if err := os.MkdirAll(filepath.Dir(fileName), 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	file, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file %s: %w", fileName, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat journal file %s: %w", fileName, err)
	}

	j.file = file
	j.currentDate = today
	j.currentSize = info.Size()
	return nil
}

// AddEntry appends one committed write.
func (j *Journal) AddEntry(op, collection, key string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.ensureCorrectFileOpen(); err != nil {
		return err
	}

	entry := JournalEntry{Timestamp: j.now(), Op: op, Collection: collection, Key: key}
	line := fmt.Sprintf("%s | %s | %s | %s\n", entry.Timestamp.Format(time.RFC3339), entry.Op, entry.Collection, entry.Key)
	n, err := j.file.WriteString(line)
	if err != nil {
		return fmt.Errorf("failed to write to journal file: %w", err)
	}
	j.currentSize += int64(n)
	return nil
}

// CurrentFile is the path entries are being written to.
func (j *Journal) CurrentFile() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return ""
	}
	return j.file.Name()
}

// CleanupOldJournals removes journal files dated before the retention
// window and returns how many were removed.
func (j *Journal) CleanupOldJournals() (int, error) {
	if j.retentionDays <= 0 {
		return 0, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().Truncate(24*time.Hour).AddDate(0, 0, -j.retentionDays)
	matches, err := filepath.Glob(j.baseFilePath + "_*.journal")
	if err != nil {
		return 0, fmt.Errorf("failed to list journal files: %w", err)
	}

	prefix := filepath.Base(j.baseFilePath) + "_"
	removed := 0
	for _, path := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), prefix), ".journal")
		if len(name) < 10 {
			continue
		}
		date, err := time.Parse("2006-01-02", name[:10])
		if err != nil || !date.Before(cutoff) {
			continue
		}
		if j.file != nil && j.file.Name() == path {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove journal file %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close journal file: %w", err)
		}
		j.file = nil
	}
	return nil
}
