/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog reads observers, projects and blocks from YAML. Every
// entry is decoded and checked on its own; a bad entry is reported and
// skipped.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/condition"
	"github.com/friendsincode/telrun/internal/models"
)

// ErrInvalidEntry marks an entry that could not be turned into a model.
var ErrInvalidEntry = errors.New("invalid catalog entry")

// Section names used in Rejection.
const (
	SectionObserver = "observer"
	SectionProject  = "project"
	SectionBlock    = "block"
)

// Rejection is one skipped entry.
type Rejection struct {
	Section string
	Index   int
	ID      string
	Err     error
}

func (r Rejection) Error() string {
	if r.ID != "" {
		return fmt.Sprintf("%s %d (%s): %v", r.Section, r.Index, r.ID, r.Err)
	}
	return fmt.Sprintf("%s %d: %v", r.Section, r.Index, r.Err)
}

// DefaultGroup names the group of blocks that do not declare one. It is
// scheduled before every declared group.
const DefaultGroup = ""

// Group is an ordered batch of blocks. Groups are scheduled one after
// another.
type Group struct {
	Name   string
	Blocks []*models.Block
}

// Catalog is the decoded, validated content of a catalog file. Blocks holds
// every accepted block in file order; Groups partitions the same blocks.
type Catalog struct {
	Directory *models.Directory
	Blocks    []*models.Block
	Groups    []Group
	Rejected  []Rejection
}

type document struct {
	Groups    []string    `yaml:"groups"`
	Observers []yaml.Node `yaml:"observers"`
	Projects  []yaml.Node `yaml:"projects"`
	Blocks    []yaml.Node `yaml:"blocks"`
}

type blockEntry struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	Kind       string     `yaml:"kind"`
	Group      string     `yaml:"group"`
	Project    string     `yaml:"project"`
	Observer   string     `yaml:"observer"`
	Priority   *float64   `yaml:"priority"`
	Conditions []string   `yaml:"conditions"`
	Field      fieldEntry `yaml:"field"`
}

type fieldEntry struct {
	Type          string        `yaml:"type"`
	Exposure      time.Duration `yaml:"exposure"`
	Overhead      time.Duration `yaml:"overhead"`
	Repeat        int           `yaml:"repeat"`
	Configuration string        `yaml:"configuration"`
	Target        *astro.Target `yaml:"target"`
	StepSize      int           `yaml:"step_size"`
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a catalog. Only a malformed document is an error; invalid
// entries, including entries with unknown keys or mistyped values, land in
// Rejected.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	groups := map[string]int{DefaultGroup: 0}
	cat := &Catalog{Directory: models.NewDirectory(), Groups: []Group{{Name: DefaultGroup}}}
	for _, name := range doc.Groups {
		if _, dup := groups[name]; dup || name == DefaultGroup {
			return nil, fmt.Errorf("decode catalog: group %q declared twice or empty: %w", name, ErrInvalidEntry)
		}
		groups[name] = len(cat.Groups)
		cat.Groups = append(cat.Groups, Group{Name: name})
	}

	for i := range doc.Observers {
		n := &doc.Observers[i]
		var o models.Observer
		if err := decodeEntry(n, &o); err != nil {
			cat.reject(SectionObserver, i, nodeID(n), err)
			continue
		}
		if err := cat.Directory.AddObserver(&o); err != nil {
			cat.reject(SectionObserver, i, o.ID, err)
		}
	}
	for i := range doc.Projects {
		n := &doc.Projects[i]
		var p models.Project
		if err := decodeEntry(n, &p); err != nil {
			cat.reject(SectionProject, i, nodeID(n), err)
			continue
		}
		if err := validateProject(&p); err != nil {
			cat.reject(SectionProject, i, p.ID, err)
			continue
		}
		if err := cat.Directory.AddProject(&p); err != nil {
			cat.reject(SectionProject, i, p.ID, err)
		}
	}

	seen := make(map[string]bool, len(doc.Blocks))
	for i := range doc.Blocks {
		n := &doc.Blocks[i]
		var e blockEntry
		if err := decodeEntry(n, &e); err != nil {
			cat.reject(SectionBlock, i, nodeID(n), err)
			continue
		}
		g, ok := groups[e.Group]
		if !ok {
			cat.reject(SectionBlock, i, e.ID, fmt.Errorf("group %q not declared: %w", e.Group, ErrInvalidEntry))
			continue
		}
		b, err := cat.block(i, e)
		if err == nil && seen[b.ID] {
			err = fmt.Errorf("duplicate block id: %w", ErrInvalidEntry)
		}
		if err != nil {
			cat.reject(SectionBlock, i, e.ID, err)
			continue
		}
		seen[b.ID] = true
		cat.Blocks = append(cat.Blocks, b)
		cat.Groups[g].Blocks = append(cat.Groups[g].Blocks, b)
	}

	if len(cat.Groups[0].Blocks) == 0 {
		cat.Groups = cat.Groups[1:]
	}
	return cat, nil
}

// decodeEntry strictly decodes one sequence item. yaml.Node.Decode cannot
// reject unknown keys, so the node is re-encoded and decoded with
// KnownFields.
func decodeEntry(n *yaml.Node, out any) error {
	raw, err := yaml.Marshal(n)
	if err == nil {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(out)
	}
	if err != nil {
		return fmt.Errorf("line %d: %v: %w", n.Line, err, ErrInvalidEntry)
	}
	return nil
}

// nodeID returns the scalar id of a mapping node, if any.
func nodeID(n *yaml.Node) string {
	if n.Kind != yaml.MappingNode {
		return ""
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "id" && n.Content[i+1].Kind == yaml.ScalarNode {
			return n.Content[i+1].Value
		}
	}
	return ""
}

func (c *Catalog) reject(section string, index int, id string, err error) {
	c.Rejected = append(c.Rejected, Rejection{Section: section, Index: index, ID: id, Err: err})
}

func validateProject(p *models.Project) error {
	switch {
	case p.Requested < 0:
		return fmt.Errorf("requested %s: %w", p.Requested, ErrInvalidEntry)
	case p.Accrued < 0:
		return fmt.Errorf("accrued %s: %w", p.Accrued, ErrInvalidEntry)
	case p.Weight < 0:
		return fmt.Errorf("weight %g: %w", p.Weight, ErrInvalidEntry)
	}
	return nil
}

func (c *Catalog) block(index int, e blockEntry) (*models.Block, error) {
	field, err := e.Field.build()
	if err != nil {
		return nil, err
	}
	conds, err := condition.ParseAll(e.Conditions)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidEntry)
	}

	kind := models.BlockKind(e.Kind)
	if kind == "" {
		kind = models.BlockSchedule
		if field.Kind().Calibration() {
			kind = models.BlockCalibration
		}
	}
	priority := 1.0
	if e.Priority != nil {
		priority = *e.Priority
	}

	id := e.ID
	if id == "" {
		// Stable across reloads of the same file so run IDs stay reproducible.
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("block/%d/%s", index, e.Name))).String()
	}

	b := models.NewBlock(id, kind, field, priority, conds...)
	b.Name = e.Name
	b.ProjectID = e.Project
	b.ObserverID = e.Observer

	if b.ProjectID != "" {
		p, ok := c.Directory.Project(b.ProjectID)
		if !ok {
			return nil, fmt.Errorf("project %s: %w", b.ProjectID, models.ErrNotFound)
		}
		if b.ObserverID == "" {
			b.ObserverID = p.ObserverID
		}
	}
	if b.ObserverID != "" {
		if _, ok := c.Directory.Observer(b.ObserverID); !ok {
			return nil, fmt.Errorf("observer %s: %w", b.ObserverID, models.ErrNotFound)
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (f fieldEntry) build() (models.Field, error) {
	cfg, err := models.ParseConfiguration(f.Configuration)
	if err != nil {
		return nil, err
	}
	exp := models.Exposure{Duration: f.Exposure, Overhead: f.Overhead, Repeat: f.Repeat, Config: cfg}
	if exp.Repeat == 0 {
		exp.Repeat = 1
	}

	switch models.FieldKind(f.Type) {
	case models.FieldLight, "":
		if f.Target == nil {
			return nil, fmt.Errorf("light field without target: %w", ErrInvalidEntry)
		}
		return &models.LightField{Exposure: exp, Pointing: *f.Target}, nil
	case models.FieldAutofocus:
		return &models.AutofocusField{Exposure: exp, Pointing: f.Target, StepSize: f.StepSize}, nil
	case models.FieldDark:
		return &models.DarkField{Exposure: exp}, nil
	case models.FieldFlat:
		return &models.FlatField{Exposure: exp}, nil
	default:
		return nil, fmt.Errorf("field type %q: %w", f.Type, ErrInvalidEntry)
	}
}
