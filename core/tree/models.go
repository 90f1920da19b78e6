// Package tree holds the content tree (department → year → section → subject → notes)
// and the transforms built on it: merging sources, folder-tree normalization, routes and search.
package tree

import (
	"encoding/json"
	"sort"
	"strconv"
)

// DefaultOrder is used for entries that do not define an order.
const DefaultOrder = 999

// Entry types
const (
	TypeMarkdown  = "md"
	TypeComponent = "jsx"
)

type (
	// Tree maps department keys to departments.
	Tree map[string]Department
	// Department maps year keys to years.
	Department map[string]Year
	// Year maps section keys to sections.
	Year map[string]Section
	// Section maps subject keys to their ordered entries.
	Section map[string][]Entry

	// Entry is a content unit of a subject: a markdown note or an embedded component.
	Entry struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		Meta      Meta   `json:"meta"`
		Content   string `json:"content,omitempty"`
		Component string `json:"component,omitempty"`
	}

	// Meta is the entry metadata. Unknown keys are kept in Extra and flattened back on marshal.
	Meta struct {
		Title    string
		Order    int
		HasOrder bool
		Likes    int
		Dislikes int
		Extra    map[string]interface{}
	}
)

var metaKnownKeys = map[string]bool{"title": true, "order": true, "likes": true, "dislikes": true}

// EffectiveOrder returns the entry order, DefaultOrder when none was set.
func (m Meta) EffectiveOrder() int {
	if !m.HasOrder {
		return DefaultOrder
	}
	return m.Order
}

func (m Meta) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Title != "" {
		out["title"] = m.Title
	}
	out["order"] = m.EffectiveOrder()
	if m.Likes != 0 {
		out["likes"] = m.Likes
	}
	if m.Dislikes != 0 {
		out["dislikes"] = m.Dislikes
	}
	return json.Marshal(out)
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MetaFromMap(raw)
	return nil
}

// MetaFromMap builds a Meta from loosely typed values (frontmatter or JSON).
// Numeric strings are accepted for numeric keys.
func MetaFromMap(raw map[string]interface{}) Meta {
	var m Meta
	for k, v := range raw {
		switch k {
		case "title":
			m.Title = toString(v)
		case "order":
			if n, ok := toInt(v); ok {
				m.Order = n
				m.HasOrder = true
			}
		case "likes":
			m.Likes, _ = toInt(v)
		case "dislikes":
			m.Dislikes, _ = toInt(v)
		}
		if !metaKnownKeys[k] {
			if m.Extra == nil {
				m.Extra = make(map[string]interface{})
			}
			m.Extra[k] = v
		}
	}
	return m
}

// NewMeta returns a Meta with a title and an explicit order.
func NewMeta(title string, order int) Meta {
	return Meta{Title: title, Order: order, HasOrder: true}
}

// DisplayTitle returns the entry title, falling back to its ID.
func (e Entry) DisplayTitle() string {
	if e.Meta.Title != "" {
		return e.Meta.Title
	}
	return e.ID
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

// SortEntries sorts entries by order (DefaultOrder when unset), keeping the relative order of equal ones.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Meta.EffectiveOrder() < entries[j].Meta.EffectiveOrder()
	})
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Add appends e to the subject at the given position, creating the intermediate levels.
func (t Tree) Add(dept, year, section, subject string, e Entry) {
	d, ok := t[dept]
	if !ok {
		d = make(Department)
		t[dept] = d
	}
	y, ok := d[year]
	if !ok {
		y = make(Year)
		d[year] = y
	}
	s, ok := y[section]
	if !ok {
		s = make(Section)
		y[section] = s
	}
	s[subject] = append(s[subject], e)
}

// EnsureDepartment adds an empty department if it does not exist yet.
func (t Tree) EnsureDepartment(dept string) {
	if _, ok := t[dept]; !ok {
		t[dept] = make(Department)
	}
}

// SortAll sorts every subject of the tree in place.
func (t Tree) SortAll() {
	t.Walk(func(_, _, _, _ string, entries []Entry) {
		SortEntries(entries)
	})
}

// Walk calls fn for each subject of the tree, in lexical key order.
func (t Tree) Walk(fn func(dept, year, section, subject string, entries []Entry)) {
	for _, dk := range SortedKeys(t) {
		d := t[dk]
		for _, yk := range SortedKeys(d) {
			y := d[yk]
			for _, sk := range SortedKeys(y) {
				s := y[sk]
				for _, subk := range SortedKeys(s) {
					fn(dk, yk, sk, subk, s[subk])
				}
			}
		}
	}
}

// Lookup finds the entry id of a subject.
func (t Tree) Lookup(dept, year, section, subject, id string) (Entry, bool) {
	entries := t[dept][year][section][subject]
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Stats counts the tree levels.
type Stats struct {
	Departments int `json:"departments"`
	Years       int `json:"years"`
	Sections    int `json:"sections"`
	Subjects    int `json:"subjects"`
	Notes       int `json:"notes"`
}

// Count returns the number of nodes at each level of the tree.
func (t Tree) Count() Stats {
	var st Stats
	st.Departments = len(t)
	for _, d := range t {
		st.Years += len(d)
		for _, y := range d {
			st.Sections += len(y)
			for _, s := range y {
				st.Subjects += len(s)
				for _, entries := range s {
					st.Notes += len(entries)
				}
			}
		}
	}
	return st
}
