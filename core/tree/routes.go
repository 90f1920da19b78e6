package tree

import "strings"

// Route is the address of a single note.
type Route struct {
	Path       string `json:"path"`
	Department string `json:"department"`
	Year       string `json:"year"`
	Section    string `json:"section"`
	Subject    string `json:"subject"`
	ID         string `json:"id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
}

// Segments returns the five path segments of the route.
func (r Route) Segments() []string {
	return []string{r.Department, r.Year, r.Section, r.Subject, r.ID}
}

// RoutePath builds `/dept/year/section/subject/id`.
func RoutePath(dept, year, section, subject, id string) string {
	return "/" + strings.Join([]string{dept, year, section, subject, id}, "/")
}

// Routes returns one route per note, in tree order.
func Routes(t Tree) []Route {
	var routes []Route
	t.Walk(func(dept, year, section, subject string, entries []Entry) {
		for _, e := range entries {
			routes = append(routes, Route{
				Path:       RoutePath(dept, year, section, subject, e.ID),
				Department: dept,
				Year:       year,
				Section:    section,
				Subject:    subject,
				ID:         e.ID,
				Title:      e.DisplayTitle(),
				Type:       e.Type,
			})
		}
	})
	return routes
}

// ParseRoutePath splits a route path into its segments. It fails unless there are exactly five non-empty ones.
func ParseRoutePath(path string) (Route, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 5 {
		return Route{}, false
	}
	for _, p := range parts {
		if p == "" {
			return Route{}, false
		}
	}
	return Route{
		Path:       "/" + strings.Join(parts, "/"),
		Department: parts[0],
		Year:       parts[1],
		Section:    parts[2],
		Subject:    parts[3],
		ID:         parts[4],
	}, true
}
