// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package relay

// Frame types, inbound then outbound.
const (
	TypeRegister         = "register"
	TypeSubscribeUpdates = "subscribe_updates"
	TypeFetchProjects    = "fetch_projects"
	TypeStreamLogs       = "stream_logs"
	TypeFetchLogs        = "fetch_logs"

	TypeRegisterAck      = "register_ack"
	TypeProjectUpdate    = "project_update"
	TypeFetchProjectsAck = "fetch_projects_ack"
	TypeFetchLogsAck     = "fetch_logs_ack"
	TypeError            = "error"
	TypeAck              = "ack"
)

// Error messages sent in error frames.
const (
	messageInvalidJSON     = "Invalid JSON payload"
	messageInvalidRegister = "Invalid project payload for register channel"
	messageInvalidWindow   = "Invalid window_id for fetch_logs"
)

// Service is one registered process instance as it appears in
// project_update and fetch_projects_ack frames.
type Service struct {
	// Path is the process's working directory. Unique within a
	// project.
	Path        string `json:"path"`
	Description string `json:"description"`
	Name        string `json:"name,omitempty"`
	// WindowID identifies the process instance. Its log buffer is
	// keyed by it.
	WindowID      int64 `json:"window_id"`
	LogsAvailable bool  `json:"logs_available"`
	CodeAvailable bool  `json:"code_available"`
}

// Registration is the project object carried by a register frame.
// WindowID is any-typed because it may arrive as a JSON number or a
// CBOR integer, and may be absent.
type Registration struct {
	ID            string `json:"id"`
	Description   string `json:"description"`
	Path          string `json:"path"`
	Name          string `json:"name,omitempty"`
	WindowID      any    `json:"window_id,omitempty"`
	LogsAvailable *bool  `json:"logs_available,omitempty"`
	CodeAvailable *bool  `json:"code_available,omitempty"`
}

// request is the union of every inbound frame.
type request struct {
	Type     string        `json:"type"`
	ID       string        `json:"id,omitempty"`
	Project  *Registration `json:"project,omitempty"`
	WindowID any           `json:"window_id,omitempty"`
	Logs     string        `json:"logs,omitempty"`
}

type registerAck struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"projectId"`
	TotalRegisteredServices int    `json:"totalRegisteredServices"`
}

type projectUpdate struct {
	Type      string    `json:"type"`
	ProjectID string    `json:"projectId"`
	Projects  []Service `json:"projects"`
}

type fetchProjectsAck struct {
	Type     string    `json:"type"`
	Projects []Service `json:"projects"`
}

type fetchLogsAck struct {
	Type     string `json:"type"`
	WindowID int64  `json:"window_id"`
	Logs     string `json:"logs"`
}

type messageReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Reply is the union of every outbound frame, as decoded by [Client].
type Reply struct {
	Type                    string    `json:"type"`
	ProjectID               string    `json:"projectId,omitempty"`
	TotalRegisteredServices int       `json:"totalRegisteredServices,omitempty"`
	Projects                []Service `json:"projects,omitempty"`
	WindowID                int64     `json:"window_id,omitempty"`
	Logs                    string    `json:"logs,omitempty"`
	Message                 string    `json:"message,omitempty"`
}
