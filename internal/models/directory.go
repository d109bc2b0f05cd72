/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrNotFound indicates an unknown observer or project ID.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates an observer or project ID registered twice.
	ErrDuplicate = errors.New("duplicate id")
)

// Observer owns projects.
type Observer struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email" json:"email"`
}

// Project carries the fair-share parameters of its blocks.
type Project struct {
	ID         string        `yaml:"id" json:"id"`
	Name       string        `yaml:"name" json:"name"`
	ObserverID string        `yaml:"observer" json:"observer_id"`
	Requested  time.Duration `yaml:"requested" json:"requested"`
	Accrued    time.Duration `yaml:"accrued" json:"accrued"`
	Weight     float64       `yaml:"weight" json:"weight"`
}

// AccruedRatio returns accrued/requested. A project without a request is
// treated as fully served.
func (p *Project) AccruedRatio() float64 {
	if p.Requested <= 0 {
		return 1
	}
	return float64(p.Accrued) / float64(p.Requested)
}

// Directory is the caller-owned lookup table blocks reference by ID.
type Directory struct {
	observers map[string]*Observer
	projects  map[string]*Project
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		observers: make(map[string]*Observer),
		projects:  make(map[string]*Project),
	}
}

func (d *Directory) AddObserver(o *Observer) error {
	if o.ID == "" {
		return fmt.Errorf("observer without id: %w", ErrNotFound)
	}
	if _, ok := d.observers[o.ID]; ok {
		return fmt.Errorf("observer %s: %w", o.ID, ErrDuplicate)
	}
	d.observers[o.ID] = o
	return nil
}

// AddProject registers a project. Its observer, when set, must be known.
func (d *Directory) AddProject(p *Project) error {
	if p.ID == "" {
		return fmt.Errorf("project without id: %w", ErrNotFound)
	}
	if _, ok := d.projects[p.ID]; ok {
		return fmt.Errorf("project %s: %w", p.ID, ErrDuplicate)
	}
	if p.ObserverID != "" {
		if _, ok := d.observers[p.ObserverID]; !ok {
			return fmt.Errorf("project %s: observer %s: %w", p.ID, p.ObserverID, ErrNotFound)
		}
	}
	if p.Weight == 0 {
		p.Weight = 1
	}
	d.projects[p.ID] = p
	return nil
}

func (d *Directory) Observer(id string) (*Observer, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.observers[id]
	return o, ok
}

func (d *Directory) Project(id string) (*Project, bool) {
	if d == nil {
		return nil, false
	}
	p, ok := d.projects[id]
	return p, ok
}

// Projects returns all projects sorted by ID.
func (d *Directory) Projects() []*Project {
	out := make([]*Project, 0, len(d.projects))
	for _, p := range d.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Observers returns all observers sorted by ID.
func (d *Directory) Observers() []*Observer {
	out := make([]*Observer, 0, len(d.observers))
	for _, o := range d.observers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Accrue adds scheduled time to a project.
func (d *Directory) Accrue(projectID string, dur time.Duration) error {
	p, ok := d.Project(projectID)
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	p.Accrued += dur
	return nil
}
