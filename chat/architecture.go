// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"strconv"
	"strings"

	"github.com/openbug-ai/cli/relay"
)

// BuildArchitecture describes the registered services to the backend:
// one block per service with its window id, name, description and the
// data the client can read for it. Blocks are separated by a blank
// line.
func BuildArchitecture(services []relay.Service) string {
	blocks := make([]string, 0, len(services))
	for _, service := range services {
		name := service.Name
		if name == "" {
			name = "Unknown Service"
		}
		var block strings.Builder
		block.WriteString("id: " + strconv.FormatInt(service.WindowID, 10) + "\n")
		block.WriteString("service_name: " + name + "\n")
		block.WriteString("service_description: " + service.Description + "\n")
		block.WriteString("available_data:")
		if service.CodeAvailable {
			block.WriteString("\n  - codebase")
		}
		if service.LogsAvailable {
			block.WriteString("\n  - logs")
		}
		blocks = append(blocks, block.String())
	}
	return strings.Join(blocks, "\n\n")
}
