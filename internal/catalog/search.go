package catalog

import (
	"strings"

	"github.com/lehigh-university-libraries/setlist/internal/models"
)

// DefaultSearchLimit caps how many matches a search returns
const DefaultSearchLimit = 50

// Search returns up to limit items whose title contains query, ignoring case,
// in catalog order. An empty query matches everything.
func Search(items []models.Item, query string, limit int) []models.Item {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	query = strings.ToLower(strings.TrimSpace(query))

	var matches []models.Item
	for _, item := range items {
		if len(matches) == limit {
			break
		}
		if query == "" || strings.Contains(strings.ToLower(item.Title), query) {
			matches = append(matches, item)
		}
	}
	return matches
}

// FindByID returns the first item with the given id
func FindByID(items []models.Item, id string) (models.Item, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return models.Item{}, false
}
