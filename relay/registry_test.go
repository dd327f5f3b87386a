// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "testing"

func TestRegistryUpsertIsIdempotentByPath(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	registry.Upsert("p1", Service{Path: "/srv/api", Description: "first", Name: "api", WindowID: 1})
	group := registry.Upsert("p1", Service{Path: "/srv/api", Description: "second", WindowID: 2, LogsAvailable: true})

	if len(group.Services) != 1 {
		t.Fatalf("services: got %d, want 1", len(group.Services))
	}
	got := group.Services[0]
	if got.Description != "second" {
		t.Errorf("description: got %q, want %q", got.Description, "second")
	}
	if got.Name != "api" {
		t.Errorf("empty name overwrote existing: got %q, want %q", got.Name, "api")
	}
	if got.WindowID != 2 || !got.LogsAvailable {
		t.Errorf("window/flags not updated: %+v", got)
	}

	group = registry.Upsert("p1", Service{Path: "/srv/api", Description: "third", Name: "gateway", WindowID: 2})
	if group.Services[0].Name != "gateway" {
		t.Errorf("non-empty name not applied: got %q", group.Services[0].Name)
	}
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	registry.Upsert("p1", Service{Path: "/b", Description: "b"})
	registry.Upsert("p1", Service{Path: "/a", Description: "a"})
	registry.Upsert("p1", Service{Path: "/b", Description: "b again"})

	group := registry.Get("p1")
	if len(group.Services) != 2 || group.Services[0].Path != "/b" || group.Services[1].Path != "/a" {
		t.Errorf("got %+v, want /b then /a", group.Services)
	}
}

func TestRegistryGetUnknownProject(t *testing.T) {
	t.Parallel()
	group := NewRegistry().Get("nope")
	if group.Services == nil || len(group.Services) != 0 {
		t.Errorf("got %#v, want empty non-nil list", group.Services)
	}
	if group.ID != "nope" {
		t.Errorf("ID: got %q, want %q", group.ID, "nope")
	}
}

func TestRegistryRemove(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	registry.Upsert("p1", Service{Path: "/a", Description: "a", WindowID: 7})

	if _, ok := registry.Remove("p1", "/missing"); ok {
		t.Error("Remove of unknown path reported ok")
	}
	if _, ok := registry.Remove("p2", "/a"); ok {
		t.Error("Remove from unknown project reported ok")
	}

	removed, ok := registry.Remove("p1", "/a")
	if !ok || removed.WindowID != 7 {
		t.Fatalf("Remove: got %+v, %v", removed, ok)
	}
	if group := registry.Get("p1"); len(group.Services) != 0 {
		t.Errorf("group after remove: got %d services, want 0", len(group.Services))
	}
}

func TestRegistryGetReturnsSnapshot(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	registry.Upsert("p1", Service{Path: "/a", Description: "a"})

	group := registry.Get("p1")
	group.Services[0].Description = "mutated"

	if registry.Get("p1").Services[0].Description != "a" {
		t.Error("mutating a snapshot changed the registry")
	}
}

func TestRegistryFindWindow(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	registry.Upsert("first", Service{Path: "/a", Description: "a", WindowID: 5})
	registry.Upsert("second", Service{Path: "/b", Description: "b", WindowID: 5})

	projectID, service, ok := registry.FindWindow(5)
	if !ok || projectID != "first" || service.Path != "/a" {
		t.Errorf("got %q %+v %v, want first match in project creation order", projectID, service, ok)
	}
	if _, _, ok := registry.FindWindow(6); ok {
		t.Error("FindWindow of unknown id reported ok")
	}
}
