// Package staging reads staged ingest work: a directory holding a
// manifest.jsonl that names CSV files under data/ and where each one goes.
package staging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/timmy/sfbulk/internal/domain"
)

const (
	// ManifestFileName is the JSONL manifest file name in staging directories.
	ManifestFileName = "manifest.jsonl"
	// DataDir is the directory name for staged CSV files.
	DataDir = "data"
)

// ManifestItem represents one line of manifest.jsonl.
type ManifestItem struct {
	ID              string `json:"id"`
	Filename        string `json:"filename"`
	Object          string `json:"object"`
	Operation       string `json:"operation"`
	ExternalIDField string `json:"external_id_field"`
}

// Item is a manifest entry resolved against the staging directory.
type Item struct {
	ID              string
	Object          string
	Operation       domain.Operation
	ExternalIDField string
	LocalPath       string
}

// ReadCSV returns the staged CSV payload.
func (i Item) ReadCSV() (string, error) {
	data, err := os.ReadFile(i.LocalPath)
	if err != nil {
		return "", fmt.Errorf("failed to read staged file for %s: %w", i.ID, err)
	}
	return string(data), nil
}

// Load reads the manifest of a staging directory.
// Parameters:
//   - dir: staging directory containing manifest.jsonl and data/.
// Returns:
//   - []Item: entries sorted by ID.
//   - error: non-nil if the manifest is missing or any entry is invalid.
func Load(dir string) ([]Item, error) {
	manifestPath := filepath.Join(dir, ManifestFileName)
	dataPath := filepath.Join(dir, DataDir)

	file, err := os.Open(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("manifest file not found: %s", manifestPath)
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var (
		items []Item
		seen  = map[string]bool{}
		line  int
	)

	// Read line by line (JSON Lines format)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var m ManifestItem
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		item, err := resolve(m, dataPath)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("manifest line %d: duplicate id %q", line, item.ID)
		}
		seen[item.ID] = true
		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})

	return items, nil
}

func resolve(m ManifestItem, dataPath string) (Item, error) {
	if m.Filename == "" {
		return Item{}, errors.New("filename is required")
	}
	if filepath.IsAbs(m.Filename) || strings.HasPrefix(filepath.Clean(m.Filename), "..") {
		return Item{}, fmt.Errorf("filename %q must be relative to %s", m.Filename, DataDir)
	}

	localPath := filepath.Join(dataPath, m.Filename)
	if _, err := os.Stat(localPath); err != nil {
		return Item{}, fmt.Errorf("staged file %s: %w", m.Filename, err)
	}

	id := m.ID
	if id == "" {
		id = strings.TrimSuffix(m.Filename, filepath.Ext(m.Filename))
	}
	op := domain.Operation(m.Operation)
	if op == "" {
		op = domain.OperationInsert
	}

	return Item{
		ID:              id,
		Object:          m.Object,
		Operation:       op,
		ExternalIDField: m.ExternalIDField,
		LocalPath:       localPath,
	}, nil
}

// List lists the staging directories under basePath that carry a manifest.
// Parameters:
//   - basePath: parent directory of the staging directories.
// Returns:
//   - []string: directory names, empty when basePath does not exist.
//   - error: non-nil if reading the directory fails.
func List(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	dirs := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			manifestPath := filepath.Join(basePath, entry.Name(), ManifestFileName)
			if _, err := os.Stat(manifestPath); err == nil {
				dirs = append(dirs, entry.Name())
			}
		}
	}

	return dirs, nil
}
