// Package markdown parses note sources: frontmatter, `## ` sections, HTML rendering and PDF export.
package markdown

import (
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/trezcool/studentnotes/core/tree"
)

const untitled = "Untitled"

var (
	frontMatterRegex = regexp.MustCompile(`^---\n([\s\S]*?)\n---\n([\s\S]*)$`)
	quotedRegex      = regexp.MustCompile(`^['"](.*)['"]$`)
)

// ParseFrontMatter splits raw into its metadata and body.
// Without a frontmatter block, the metadata is {title: "Untitled", order: 999} and the body is raw.
func ParseFrontMatter(raw string) (tree.Meta, string) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	match := frontMatterRegex.FindStringSubmatch(raw)
	if match == nil {
		return tree.NewMeta(untitled, tree.DefaultOrder), raw
	}
	return tree.MetaFromMap(parseMetaBlock(match[1])), match[2]
}

func parseMetaBlock(block string) map[string]interface{} {
	values := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(block), &values); err == nil {
		for k, v := range values {
			if s, ok := v.(string); ok {
				values[k] = numberOrString(s)
			}
		}
		return values
	}

	// not valid YAML: `key: value` lines
	values = make(map[string]interface{})
	for _, line := range strings.Split(block, "\n") {
		key, val, found := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		val = quotedRegex.ReplaceAllString(strings.TrimSpace(val), "$1")
		values[key] = numberOrString(val)
	}
	return values
}

func numberOrString(s string) interface{} {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return int(n)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return s
}
