package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Item represents a single catalog entry that can be placed in a setlist
type Item struct {
	ID       string `json:"id" yaml:"id" parquet:"id"`
	Title    string `json:"title" yaml:"title" parquet:"title"`
	ImageURL string `json:"image_url" yaml:"image_url" parquet:"image_url"`
}

// UnmarshalJSON accepts both numeric and string identifiers
func (i *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Title    string          `json:"title"`
		ImageURL string          `json:"image_url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := parseID(raw.ID)
	if err != nil {
		return err
	}

	i.ID = id
	i.Title = raw.Title
	i.ImageURL = raw.ImageURL
	return nil
}

func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid item id %s: %w", strings.TrimSpace(string(raw)), err)
	}
	return n.String(), nil
}

// String returns a short description used in logs and CLI output
func (i Item) String() string {
	if i.ID == "" {
		return i.Title
	}
	return fmt.Sprintf("%s (%s)", i.Title, i.ID)
}
