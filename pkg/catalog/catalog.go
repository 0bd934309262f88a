// Package catalog loads and owns the immutable-after-load mission template
// records, ordered by priority so higher-priority templates are considered
// (and establish their claims) first.
package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starlance/starlance/pkg/conditional"
	"github.com/starlance/starlance/pkg/telemetry"
	"github.com/starlance/starlance/pkg/universe"
)

// missionExt is the mission source file extension.
const missionExt = ".star"

// TemplateID indexes into the priority-ordered template list. IDs are only
// stable until the next LoadAll or ReloadOne; hold *Template across those.
type TemplateID int

// Catalog is the template store.
type Catalog struct {
	dir       string
	templates []*Template
	byName    map[string]int
	evaluator *conditional.Evaluator
	uni       *universe.Universe
	logger    *telemetry.Logger
}

// New creates an empty catalog rooted at dir.
func New(dir string, uni *universe.Universe, evaluator *conditional.Evaluator, logger *telemetry.Logger) *Catalog {
	return &Catalog{
		dir:       dir,
		byName:    make(map[string]int),
		evaluator: evaluator,
		uni:       uni,
		logger:    logger.NewComponentLogger("catalog"),
	}
}

// LoadAll enumerates every mission source under the catalog directory and
// parses them. Per-file failures are logged and skipped; duplicate names keep
// the first-loaded entry. The whole load fails only if the enumeration
// itself does.
func (c *Catalog) LoadAll() error {
	var files []string
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, missionExt) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enumerate mission data under %s: %w", c.dir, err)
	}
	sort.Strings(files)

	c.templates = c.templates[:0]
	c.byName = make(map[string]int)

	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			c.logger.WithError(err).Warnf("skipping unreadable mission file %s", path)
			continue
		}
		t, err := c.parseTemplate(path, string(src))
		if err != nil {
			c.logger.WithError(err).Warnf("skipping mission file %s", path)
			continue
		}
		if _, dup := c.byName[t.Name]; dup {
			c.logger.WithTemplate(t.Name).Warnf("duplicate template name in %s, keeping first", path)
			continue
		}
		c.byName[t.Name] = len(c.templates)
		c.templates = append(c.templates, t)
	}

	c.sortTemplates()
	c.logger.Infof("loaded %d mission templates", len(c.templates))
	return nil
}

// sortTemplates orders by priority, ties broken by name, and rebuilds the
// name index.
func (c *Catalog) sortTemplates() {
	sort.SliceStable(c.templates, func(i, j int) bool {
		a, b := c.templates[i], c.templates[j]
		if a.Avail.Priority != b.Avail.Priority {
			return a.Avail.Priority < b.Avail.Priority
		}
		return a.Name < b.Name
	})
	c.byName = make(map[string]int, len(c.templates))
	for i, t := range c.templates {
		c.byName[t.Name] = i
	}
}

// GetByName resolves a template name to its id.
func (c *Catalog) GetByName(name string) (TemplateID, bool) {
	i, ok := c.byName[name]
	return TemplateID(i), ok
}

// Get returns the template for an id.
func (c *Catalog) Get(id TemplateID) (*Template, bool) {
	if id < 0 || int(id) >= len(c.templates) {
		return nil, false
	}
	return c.templates[id], true
}

// Lookup returns the template with the given name.
func (c *Catalog) Lookup(name string) (*Template, bool) {
	i, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return c.templates[i], true
}

// Templates returns the templates in priority order. The returned slice must
// not be mutated.
func (c *Catalog) Templates() []*Template {
	return c.templates
}

// Len returns the number of loaded templates.
func (c *Catalog) Len() int {
	return len(c.templates)
}

// ReloadOne re-parses and recompiles a single template in place. On failure
// the previous record (including its compiled chunk) is retained and the
// error returned. Template pointer identity is preserved so live missions
// keep a valid back-reference.
func (c *Catalog) ReloadOne(name string) error {
	i, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	old := c.templates[i]

	src, err := os.ReadFile(old.Filename)
	if err != nil {
		return fmt.Errorf("reload %q: %w", name, err)
	}
	fresh, err := c.parseTemplate(old.Filename, string(src))
	if err != nil {
		return fmt.Errorf("reload %q: %w", name, err)
	}
	if fresh.Name != name {
		return fmt.Errorf("reload %q: file now declares template %q", name, fresh.Name)
	}

	*old = *fresh
	c.sortTemplates()
	c.logger.WithTemplate(name).Info("template reloaded")
	return nil
}

// addFromFile parses a new mission file and inserts it. Used by the dev
// watcher when a file appears after LoadAll.
func (c *Catalog) addFromFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	t, err := c.parseTemplate(path, string(src))
	if err != nil {
		return err
	}
	if _, dup := c.byName[t.Name]; dup {
		return fmt.Errorf("duplicate template name %q", t.Name)
	}
	c.templates = append(c.templates, t)
	c.sortTemplates()
	return nil
}

// byFilename finds the template loaded from path.
func (c *Catalog) byFilename(path string) (*Template, bool) {
	for _, t := range c.templates {
		if t.Filename == path {
			return t, true
		}
	}
	return nil, false
}
