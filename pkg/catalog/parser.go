package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/starlance/starlance/pkg/scripting"
)

// headerDelim delimits the YAML front matter inside the leading comment
// block of a mission file.
const headerDelim = "# ---"

// header is the declarative front matter of a mission file.
type header struct {
	Name   string `yaml:"name" validate:"required"`
	Unique bool   `yaml:"unique"`
	Avail  struct {
		Location string `yaml:"location" validate:"required"`
		Chance   int    `yaml:"chance" validate:"gte=0"`
		Spob     string `yaml:"spob"`
		System   string `yaml:"system"`
		Chapter  string `yaml:"chapter"`
		Factions []int  `yaml:"factions"`
		Cond     string `yaml:"cond"`
		Done     string `yaml:"done"`
		Priority *int   `yaml:"priority"`
	} `yaml:"avail" validate:"required"`
	Tags []string `yaml:"tags"`
}

// defaultPriority is used when the header does not set one. Mid-range so
// content can order itself both ways.
const defaultPriority = 50

var headerValidate = validator.New()

// extractHeader pulls the front-matter YAML out of the leading comment block.
// Returns the YAML text and the remaining source.
func extractHeader(src string) (string, error) {
	lines := strings.Split(src, "\n")
	start := -1
	end := -1
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == headerDelim {
			if start == -1 {
				start = i
				continue
			}
			end = i
			break
		}
		if start == -1 && trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			// Code before any header: no front matter.
			break
		}
	}
	if start == -1 || end == -1 {
		return "", fmt.Errorf("missing front-matter header (delimited by %q)", headerDelim)
	}

	var b strings.Builder
	for _, line := range lines[start+1 : end] {
		stripped := strings.TrimPrefix(line, "# ")
		if stripped == line {
			stripped = strings.TrimPrefix(line, "#")
		}
		b.WriteString(stripped)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// parseTemplate parses one mission source file into a Template. The
// conditional is compiled here; a conditional compile failure is NOT a parse
// failure (the template loads as permanently-reject, per the matcher
// contract), so it is reported through the catalog logger by the caller.
func (c *Catalog) parseTemplate(filename, src string) (*Template, error) {
	headerYAML, err := extractHeader(src)
	if err != nil {
		return nil, err
	}

	var h header
	if err := yaml.Unmarshal([]byte(headerYAML), &h); err != nil {
		return nil, fmt.Errorf("malformed header: %w", err)
	}
	if err := headerValidate.Struct(&h); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	loc, err := ParseLocation(h.Avail.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	t := &Template{
		Name:     h.Name,
		Filename: filename,
		Source:   src,
		Unique:   h.Unique,
		Tags:     make(map[string]bool, len(h.Tags)),
	}
	for _, tag := range h.Tags {
		t.Tags[tag] = true
	}

	t.Avail = Availability{
		Location:     loc,
		Chance:       h.Avail.Chance,
		Spob:         h.Avail.Spob,
		System:       h.Avail.System,
		ChapterRaw:   h.Avail.Chapter,
		CondRaw:      h.Avail.Cond,
		Prerequisite: h.Avail.Done,
		Priority:     defaultPriority,
	}
	if h.Avail.Priority != nil {
		t.Avail.Priority = *h.Avail.Priority
	}
	if len(h.Avail.Factions) > 0 {
		t.Avail.Factions = make(map[int]bool, len(h.Avail.Factions))
		for _, f := range h.Avail.Factions {
			t.Avail.Factions[f] = true
		}
	}

	// Chance 0 on a spawnable location is a missing-chance diagnostic; the
	// draw still happens (0 reads as 100%, the documented quirk).
	if loc != LocationNone && h.Avail.Chance == 0 {
		c.logger.WithTemplate(t.Name).Warn("missing or zero chance, treated as 100%")
	}

	if t.Avail.ChapterRaw != "" {
		re, err := regexp.Compile(t.Avail.ChapterRaw)
		if err != nil {
			c.logger.WithTemplate(t.Name).WithError(err).
				Warn("chapter pattern failed to compile, template will never match")
		} else {
			t.Avail.Chapter = re
		}
	}

	if t.Avail.CondRaw != "" {
		pred, err := c.evaluator.Compile(t.Avail.CondRaw)
		if err != nil {
			c.logger.WithTemplate(t.Name).WithError(err).
				Warn("conditional failed to compile, template will never match")
		} else {
			t.Avail.Cond = pred
		}
	}

	// Reference-catalog existence is a warning, not fatal.
	if t.Avail.Spob != "" {
		if _, ok := c.uni.GetSpob(t.Avail.Spob); !ok {
			c.logger.WithTemplate(t.Name).Warnf("unknown spob %q", t.Avail.Spob)
		}
	}
	if t.Avail.System != "" {
		if _, ok := c.uni.GetSystem(t.Avail.System); !ok {
			c.logger.WithTemplate(t.Name).Warnf("unknown system %q", t.Avail.System)
		}
	}

	chunk, err := scripting.CompileChunk(filename, src)
	if err != nil {
		return nil, fmt.Errorf("script body: %w", err)
	}
	t.Chunk = chunk

	return t, nil
}
