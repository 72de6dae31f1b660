package storage

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

const defaultExt = ".jpg"

var pinIDPattern = regexp.MustCompile(`/pin/([A-Za-z0-9_-]+)/?`)

// Manager handles media file naming, duplicate detection and atomic saves
type Manager struct {
	outputDir  string
	downloaded map[string]bool
	mu         sync.RWMutex
}

// NewManager creates a new storage manager
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir:  outputDir,
		downloaded: make(map[string]bool),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles records every finished file already in the output directory
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		m.downloaded[entry.Name()] = true
	}

	return nil
}

// FileName derives the destination file name for a pin. The pin id is used
// when the pin URL carries one; otherwise a hash of the media URL.
func FileName(pinURL, mediaURL string) string {
	ext := extension(mediaURL)
	if m := pinIDPattern.FindStringSubmatch(pinURL); m != nil {
		return m[1] + ext
	}

	source := mediaURL
	if source == "" {
		source = pinURL
	}
	sum := blake2b.Sum256([]byte(source))
	return hex.EncodeToString(sum[:16]) + ext
}

// extension returns the media URL's file extension, or .jpg
func extension(mediaURL string) string {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return defaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".mp4":
		return ext
	default:
		return defaultExt
	}
}

// Path returns the absolute destination of a file name
func (m *Manager) Path(name string) string {
	return filepath.Join(m.outputDir, name)
}

// IsDownloaded checks if a file with the given name already exists
func (m *Manager) IsDownloaded(name string) bool {
	m.mu.RLock()
	known := m.downloaded[name]
	m.mu.RUnlock()
	if known {
		return true
	}

	if _, err := os.Stat(m.Path(name)); err == nil {
		m.mu.Lock()
		m.downloaded[name] = true
		m.mu.Unlock()
		return true
	}

	return false
}

// Save writes r to the named file through a temporary file and a rename,
// so a partial download never looks finished. It returns the final path.
func (m *Manager) Save(r io.Reader, name string) (string, error) {
	filename := m.Path(name)

	out, err := os.CreateTemp(m.outputDir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to save media data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.downloaded[name] = true
	m.mu.Unlock()

	return filename, nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// DownloadedCount returns the number of files known to be saved
func (m *Manager) DownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.downloaded)
}
