// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the per-service metadata file name.
const ProjectFile = "openbug.yaml"

// Project is the metadata a wrapped service registers with the relay.
type Project struct {
	// ID is the project the service belongs to.
	ID string `yaml:"id"`

	// Description says what the service does, in a sentence.
	Description string `yaml:"description"`

	// Name is an optional display name.
	Name string `yaml:"name,omitempty"`

	// WindowID pins the service instance id. Zero means one is
	// assigned at registration time.
	WindowID int64 `yaml:"window_id,omitempty"`

	// LogsAvailable and CodeAvailable gate the backend's tool
	// access. Both default to true.
	LogsAvailable *bool `yaml:"logs_available,omitempty"`
	CodeAvailable *bool `yaml:"code_available,omitempty"`

	// Path is the directory openbug.yaml was found in.
	Path string `yaml:"-"`
}

// LoadProject reads openbug.yaml from dir.
func LoadProject(dir string) (*Project, error) {
	absolute, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(absolute, ProjectFile))
	if err != nil {
		return nil, err
	}

	var project Project
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ProjectFile, err)
	}
	project.ID = strings.TrimSpace(project.ID)
	project.Description = strings.TrimSpace(project.Description)
	project.Name = strings.TrimSpace(project.Name)
	project.Path = absolute

	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(absolute, ProjectFile), err)
	}
	return &project, nil
}

// Validate reports missing required fields.
func (p *Project) Validate() error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if p.Description == "" {
		errs = append(errs, errors.New("description is required"))
	}
	return errors.Join(errs...)
}

// Logs reports whether the backend may read this service's logs.
func (p *Project) Logs() bool { return p.LogsAvailable == nil || *p.LogsAvailable }

// Code reports whether the backend may read this service's code.
func (p *Project) Code() bool { return p.CodeAvailable == nil || *p.CodeAvailable }
