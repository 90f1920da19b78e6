// Package static loads the content tree bundled with the deployment: `pages/<dept>/<year>/<section>/<subject>/<id>.{md,jsx}`.
package static

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/markdown"
	"github.com/trezcool/studentnotes/core/tree"
)

// DefaultPattern matches every note file under pages/.
const DefaultPattern = "pages/**/*.{md,jsx}"

const (
	pathParts      = 5
	maxParallelism = 8
)

// system pages living next to the notes
var skippedPages = map[string]bool{"Home": true, "NotFound": true}

// Loader reads the static tree from a filesystem.
type Loader struct {
	fs      afero.Fs
	pattern string
	logger  core.Logger
}

// NewLoader returns a Loader reading fs. An empty pattern means DefaultPattern.
func NewLoader(fs afero.Fs, pattern string, logger core.Logger) *Loader {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Loader{fs: fs, pattern: pattern, logger: logger}
}

// NewOSLoader returns a Loader rooted at the root directory of the OS filesystem.
func NewOSLoader(root, pattern string, logger core.Logger) *Loader {
	return NewLoader(afero.NewBasePathFs(afero.NewOsFs(), root), pattern, logger)
}

type loaded struct {
	index int
	parts []string
	entry tree.Entry
}

// Load globs the note files, parses them concurrently and builds the tree.
// Files outside the `dept/year/section/subject/id` layout are ignored. Subjects are sorted by order.
func (l *Loader) Load(ctx context.Context) (tree.Tree, error) {
	if !doublestar.ValidatePattern(l.pattern) {
		return nil, errors.Errorf("invalid content pattern %q", l.pattern)
	}

	fsys := afero.NewIOFS(l.fs)
	matches, err := doublestar.Glob(fsys, l.pattern)
	if err != nil {
		return nil, errors.Wrap(err, "globbing content")
	}
	sort.Strings(matches)

	base, _ := doublestar.SplitPattern(l.pattern)
	p := pool.NewWithResults[*loaded]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(maxParallelism)

	for i, match := range matches {
		i, match := i, match
		rel := strings.TrimPrefix(match, base+"/")
		if base == "." {
			rel = match
		}

		ext := path.Ext(rel)
		parts := strings.Split(strings.TrimSuffix(rel, ext), "/")
		if skippedPages[parts[len(parts)-1]] {
			continue
		}
		if len(parts) != pathParts {
			if l.logger != nil {
				l.logger.Debug(fmt.Sprintf("skipping %s: not a dept/year/section/subject/note path", match))
			}
			continue
		}

		p.Go(func(ctx context.Context) (*loaded, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			entry, err := l.loadEntry(match, rel, ext, parts[pathParts-1])
			if err != nil {
				return nil, err
			}
			return &loaded{index: i, parts: parts, entry: entry}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })

	t := make(tree.Tree)
	for _, r := range results {
		t.Add(r.parts[0], r.parts[1], r.parts[2], r.parts[3], r.entry)
	}
	t.SortAll()
	return t, nil
}

func (l *Loader) loadEntry(fpath, rel, ext, id string) (tree.Entry, error) {
	switch ext {
	case ".jsx":
		return tree.Entry{
			ID:        id,
			Type:      tree.TypeComponent,
			Meta:      tree.NewMeta(id, tree.DefaultOrder),
			Component: rel,
		}, nil
	case ".md":
		raw, err := afero.ReadFile(l.fs, fpath)
		if err != nil {
			return tree.Entry{}, errors.Wrapf(err, "reading %s", fpath)
		}
		meta, body := markdown.ParseFrontMatter(string(raw))
		return tree.Entry{ID: id, Type: tree.TypeMarkdown, Meta: meta, Content: body}, nil
	default:
		return tree.Entry{}, errors.Errorf("unsupported note file %s", fpath)
	}
}
