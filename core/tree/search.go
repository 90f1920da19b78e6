package tree

import "strings"

// SearchItem is a flattened, searchable note.
type SearchItem struct {
	Title       string `json:"title"`
	Path        string `json:"path"`
	Breadcrumbs string `json:"breadcrumbs"`
	Excerpt     string `json:"excerpt,omitempty"`
}

// Flatten lists every note of the tree as a SearchItem.
func Flatten(t Tree) []SearchItem {
	items := make([]SearchItem, 0)
	t.Walk(func(dept, year, section, subject string, entries []Entry) {
		crumbs := strings.ToUpper(dept) + " > " + year + " > " + strings.ToUpper(subject)
		for _, e := range entries {
			items = append(items, SearchItem{
				Title:       e.DisplayTitle(),
				Path:        RoutePath(dept, year, section, subject, e.ID),
				Breadcrumbs: crumbs,
			})
		}
	})
	return items
}

// Search returns the notes whose title or breadcrumbs contain query, ignoring case.
// An empty query matches everything.
func Search(t Tree, query string) []SearchItem {
	return FilterItems(Flatten(t), query)
}

// FilterItems filters already flattened items.
func FilterItems(items []SearchItem, query string) []SearchItem {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}

	results := make([]SearchItem, 0)
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Title), q) ||
			strings.Contains(strings.ToLower(item.Breadcrumbs), q) {
			results = append(results, item)
		}
	}
	return results
}
