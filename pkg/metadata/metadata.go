package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PinMetadata describes a downloaded pin. It is written next to the media
// file so the download directory stays meaningful without the database.
type PinMetadata struct {
	PinURL   string `json:"pin_url"`
	BoardURL string `json:"board_url"`
	ImageURL string `json:"image_url"`
	Title    string `json:"title,omitempty"`

	FileName     string    `json:"file_name"`
	FileSize     int64     `json:"file_size,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// sidecarPath is the metadata file belonging to a media file
func sidecarPath(mediaPath string) string {
	return mediaPath + ".json"
}

// Save writes the metadata to a JSON file next to mediaPath
func (m *PinMetadata) Save(mediaPath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(sidecarPath(mediaPath), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load reads the metadata stored next to mediaPath
func Load(mediaPath string) (*PinMetadata, error) {
	data, err := os.ReadFile(sidecarPath(mediaPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta PinMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// Exists checks if a metadata file exists for a media file
func Exists(mediaPath string) bool {
	_, err := os.Stat(sidecarPath(mediaPath))
	return err == nil
}
