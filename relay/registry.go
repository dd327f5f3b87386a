// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "slices"

// Group is a snapshot of one project's registered services, in
// registration order.
type Group struct {
	ID       string
	Services []Service
}

// Registry maps project ids to their registered services. Groups are
// created on first registration and never deleted; a group whose last
// service leaves stays addressable with an empty list.
//
// Registry is not safe for concurrent use. The server serializes
// access under its own mutex.
type Registry struct {
	groups map[string][]Service
	// order lists project ids by creation, so lookups that scan every
	// group are deterministic.
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[string][]Service)}
}

// Upsert adds service to the project, or updates the entry with the
// same path in place. An update overwrites the description, window id
// and capability flags; the name only when the new one is non-empty.
// Returns a snapshot of the whole group.
func (r *Registry) Upsert(projectID string, service Service) Group {
	services, exists := r.groups[projectID]
	if !exists {
		r.order = append(r.order, projectID)
	}

	index := slices.IndexFunc(services, func(existing Service) bool { return existing.Path == service.Path })
	if index < 0 {
		services = append(services, service)
	} else {
		existing := &services[index]
		existing.Description = service.Description
		if service.Name != "" {
			existing.Name = service.Name
		}
		existing.WindowID = service.WindowID
		existing.LogsAvailable = service.LogsAvailable
		existing.CodeAvailable = service.CodeAvailable
	}
	r.groups[projectID] = services

	return r.Get(projectID)
}

// Remove deletes the entry with the given path and returns it.
// Reports false when the project or the path is unknown.
func (r *Registry) Remove(projectID, path string) (Service, bool) {
	services := r.groups[projectID]
	index := slices.IndexFunc(services, func(existing Service) bool { return existing.Path == path })
	if index < 0 {
		return Service{}, false
	}
	removed := services[index]
	r.groups[projectID] = slices.Delete(services, index, index+1)
	return removed, true
}

// Lookup returns the entry with the given path.
func (r *Registry) Lookup(projectID, path string) (Service, bool) {
	for _, service := range r.groups[projectID] {
		if service.Path == path {
			return service, true
		}
	}
	return Service{}, false
}

// Get returns a snapshot of the project. An unknown project yields an
// empty, non-nil service list.
func (r *Registry) Get(projectID string) Group {
	services := make([]Service, len(r.groups[projectID]))
	copy(services, r.groups[projectID])
	return Group{ID: projectID, Services: services}
}

// FindWindow returns the first entry, scanning projects in creation
// order, whose window id matches.
func (r *Registry) FindWindow(windowID int64) (string, Service, bool) {
	for _, projectID := range r.order {
		for _, service := range r.groups[projectID] {
			if service.WindowID == windowID {
				return projectID, service, true
			}
		}
	}
	return "", Service{}, false
}
