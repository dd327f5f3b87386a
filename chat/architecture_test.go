// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"testing"

	"github.com/openbug-ai/cli/relay"
)

func TestBuildArchitecture(t *testing.T) {
	t.Parallel()
	services := []relay.Service{
		{Path: "/srv/api", Name: "api", Description: "REST backend", WindowID: 101, LogsAvailable: true, CodeAvailable: true},
		{Path: "/srv/worker", Description: "queue worker", WindowID: 102, LogsAvailable: true},
		{Path: "/srv/vendor", Description: "closed source", WindowID: 103},
	}
	want := "id: 101\nservice_name: api\nservice_description: REST backend\navailable_data:\n  - codebase\n  - logs" +
		"\n\n" +
		"id: 102\nservice_name: Unknown Service\nservice_description: queue worker\navailable_data:\n  - logs" +
		"\n\n" +
		"id: 103\nservice_name: Unknown Service\nservice_description: closed source\navailable_data:"
	if got := BuildArchitecture(services); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
	if got := BuildArchitecture(nil); got != "" {
		t.Errorf("no services: got %q", got)
	}
}
