package catalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/setlist/internal/models"
)

// ErrUnsupportedFormat is returned for catalog files with an unknown extension
var ErrUnsupportedFormat = errors.New("unsupported catalog format")

// Load reads every item from a catalog file. The format is chosen by extension:
// .json, .jsonl, .yaml/.yml, .parquet, or .js (a JSON array assigned to a variable).
func Load(path string) ([]models.Item, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		items []models.Item
		err   error
	)
	switch ext {
	case ".parquet":
		items, err = loadParquet(path)
	case ".jsonl":
		items, err = loadJSONL(path)
	case ".json":
		items, err = loadJSON(path)
	case ".js":
		items, err = loadScript(path)
	case ".yaml", ".yml":
		items, err = loadYAML(path)
	default:
		return nil, fmt.Errorf("%w: %q (supported: .json, .jsonl, .yaml, .parquet, .js)", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded catalog", "path", path, "items", len(items))
	return items, nil
}

func loadJSON(path string) ([]models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return decodeJSON(data)
}

// decodeJSON accepts a bare array or an object wrapping it under "songs" or "items"
func decodeJSON(data []byte) ([]models.Item, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var items []models.Item
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
		return items, nil
	}

	var wrapped struct {
		Songs []models.Item `json:"songs"`
		Items []models.Item `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(wrapped.Songs) > 0 {
		return wrapped.Songs, nil
	}
	return wrapped.Items, nil
}

// loadScript extracts the array literal from a file like `const ALL_SONGS = [...];`
func loadScript(path string) ([]models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	start := bytes.IndexByte(data, '[')
	end := bytes.LastIndexByte(data, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("failed to parse catalog: no array literal in %s", path)
	}
	return decodeJSON(data[start : end+1])
}

func loadJSONL(path string) ([]models.Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer file.Close()

	var items []models.Item
	scanner := bufio.NewScanner(file)

	const maxCapacity = 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var item models.Item
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading catalog: %w", err)
	}

	return items, nil
}

func loadYAML(path string) ([]models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var items []models.Item
		if err := root.Decode(&items); err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
		return items, nil
	}

	var wrapped struct {
		Songs []models.Item `yaml:"songs"`
		Items []models.Item `yaml:"items"`
	}
	if err := root.Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(wrapped.Songs) > 0 {
		return wrapped.Songs, nil
	}
	return wrapped.Items, nil
}

func loadParquet(path string) ([]models.Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet catalog opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[models.Item](pf)
	defer reader.Close()

	var items []models.Item
	rows := make([]models.Item, 128)
	for {
		n, err := reader.Read(rows)
		items = append(items, rows[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	return items, nil
}
