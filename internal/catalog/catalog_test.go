package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/setlist/internal/models"
)

var sample = []models.Item{
	{ID: "1", Title: "Amazing Grace", ImageURL: "https://example.com/1.png"},
	{ID: "2", Title: "How Great Thou Art", ImageURL: "https://example.com/2.jpg"},
	{ID: "3", Title: "Great Is Thy Faithfulness", ImageURL: "https://example.com/3.webp"},
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json array with numeric ids",
			file: "songs.json",
			content: `[
				{"id": 1, "title": "Amazing Grace", "image_url": "https://example.com/1.png"},
				{"id": 2, "title": "How Great Thou Art", "image_url": "https://example.com/2.jpg"},
				{"id": "3", "title": "Great Is Thy Faithfulness", "image_url": "https://example.com/3.webp"}
			]`,
		},
		{
			name: "json object",
			file: "songs.json",
			content: `{"songs": [
				{"id": "1", "title": "Amazing Grace", "image_url": "https://example.com/1.png"},
				{"id": "2", "title": "How Great Thou Art", "image_url": "https://example.com/2.jpg"},
				{"id": "3", "title": "Great Is Thy Faithfulness", "image_url": "https://example.com/3.webp"}
			]}`,
		},
		{
			name: "jsonl",
			file: "songs.jsonl",
			content: `{"id": 1, "title": "Amazing Grace", "image_url": "https://example.com/1.png"}

{"id": 2, "title": "How Great Thou Art", "image_url": "https://example.com/2.jpg"}
{"id": 3, "title": "Great Is Thy Faithfulness", "image_url": "https://example.com/3.webp"}
`,
		},
		{
			name: "script",
			file: "songs_data.js",
			content: `const ALL_SONGS = [
  {"id": 1, "title": "Amazing Grace", "image_url": "https://example.com/1.png"},
  {"id": 2, "title": "How Great Thou Art", "image_url": "https://example.com/2.jpg"},
  {"id": 3, "title": "Great Is Thy Faithfulness", "image_url": "https://example.com/3.webp"}
];
`,
		},
		{
			name: "yaml list",
			file: "songs.yaml",
			content: `- id: "1"
  title: Amazing Grace
  image_url: https://example.com/1.png
- id: "2"
  title: How Great Thou Art
  image_url: https://example.com/2.jpg
- id: "3"
  title: Great Is Thy Faithfulness
  image_url: https://example.com/3.webp
`,
		},
		{
			name: "yaml object",
			file: "songs.yml",
			content: `items:
  - id: "1"
    title: Amazing Grace
    image_url: https://example.com/1.png
  - id: "2"
    title: How Great Thou Art
    image_url: https://example.com/2.jpg
  - id: "3"
    title: Great Is Thy Faithfulness
    image_url: https://example.com/3.webp
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, sample, items)
		})
	}
}

func TestLoadParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := parquet.NewGenericWriter[models.Item](f)
	_, err = w.Write(sample)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	items, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sample, items)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "songs.csv", "id,title"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(writeFile(t, "songs.json", "{not json"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "songs.jsonl", "{\"id\": 1}\nnope\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = Load(writeFile(t, "songs.js", "const ALL_SONGS = null;"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		limit    int
		expected []string
	}{
		{name: "case insensitive", query: "GREAT", expected: []string{"2", "3"}},
		{name: "limit", query: "great", limit: 1, expected: []string{"2"}},
		{name: "empty query", query: "  ", expected: []string{"1", "2", "3"}},
		{name: "no match", query: "xyz", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, item := range Search(sample, tt.query, tt.limit) {
				got = append(got, item.ID)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSearchDefaultLimit(t *testing.T) {
	items := make([]models.Item, 120)
	for i := range items {
		items[i] = models.Item{Title: "Song"}
	}
	assert.Len(t, Search(items, "song", 0), DefaultSearchLimit)
}

func TestFindByID(t *testing.T) {
	item, ok := FindByID(sample, "2")
	require.True(t, ok)
	assert.Equal(t, "How Great Thou Art", item.Title)

	_, ok = FindByID(sample, "99")
	assert.False(t, ok)
}
