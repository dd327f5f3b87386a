// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openbug-ai/cli/lib/capture"
	"github.com/openbug-ai/cli/lib/codec"
	"github.com/openbug-ai/cli/lib/codesearch"
	"github.com/openbug-ai/cli/relay"
)

// Local tools the backend may call.
const (
	ToolReadFile     = "read_file"
	ToolGrepSearch   = "grep_search"
	ToolReadLogs     = "read_logs"
	ToolTailLogs     = "tail_logs"
	ToolGrepLogs     = "grep_logs"
	ToolRecentErrors = "get_recent_errors"
)

// NoLogLines is returned by log tools when neither the local capture
// nor the relay holds any output for the service.
const NoLogLines = "No log lines available"

// ToolFailed is posted when a tool panics.
const ToolFailed = "Tool execution failed"

// Argument defaults.
const (
	defaultReadWindow  = 30
	defaultGrepContext = 5
)

// rememberedCalls bounds how many dispatched call ids are kept for
// duplicate detection. The oldest are forgotten first.
const rememberedCalls = 1024

// relayFetchTimeout bounds the fetch_logs fallback.
const relayFetchTimeout = 5 * time.Second

// capability is the flag gating a tool.
type capability int

const (
	codeCapability capability = iota
	logsCapability
)

var tools = map[string]capability{
	ToolReadFile:     codeCapability,
	ToolGrepSearch:   codeCapability,
	ToolReadLogs:     logsCapability,
	ToolTailLogs:     logsCapability,
	ToolGrepLogs:     logsCapability,
	ToolRecentErrors: logsCapability,
}

// IsTool reports whether name is a tool the Dispatcher runs.
func IsTool(name string) bool {
	_, ok := tools[name]
	return ok
}

// ToolCall is one backend request to run a local tool.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// LogFetcher reads a service's relay-side log buffer.
// *relay.Client implements it.
type LogFetcher interface {
	FetchLogs(ctx context.Context, windowID int64) (string, error)
}

// ResultPoster delivers a tool result to the backend.
type ResultPoster interface {
	PostToolResult(ctx context.Context, call ToolCall, result any) error
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Capture is this process's own capture of the service output.
	// May be nil when the chat runs in a different process from the
	// service, which is the usual case.
	Capture *capture.Buffer

	// Relay, if set, is asked for the service's logs when Capture is
	// empty.
	Relay LogFetcher

	Poster ResultPoster
	Logger *slog.Logger
}

// Dispatcher runs backend tool calls against the active service.
type Dispatcher struct {
	capture *capture.Buffer
	relay   LogFetcher
	poster  ResultPoster
	logger  *slog.Logger

	mutex   sync.Mutex
	service relay.Service
	// consumed holds the ids of recently dispatched calls, and order
	// the same ids oldest first.
	consumed map[string]bool
	order    []string
}

// NewDispatcher returns a dispatcher with no active service. Every
// tool is denied until SetService is called.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		capture:  config.Capture,
		relay:    config.Relay,
		poster:   config.Poster,
		logger:   logger,
		consumed: make(map[string]bool),
	}
}

// SetService makes service the target of later calls.
func (d *Dispatcher) SetService(service relay.Service) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.service = service
}

// Service returns the active service.
func (d *Dispatcher) Service() relay.Service {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.service
}

// Dispatch runs call and posts its result. A call id is dispatched at
// most once while it is among the last rememberedCalls ids seen;
// repeats are ignored. A failed post is logged and
// dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall) {
	if !IsTool(call.Name) {
		d.logger.Debug("ignoring call to unknown tool", "tool", call.Name, "tool_call_id", call.ID)
		return
	}
	if call.ID != "" && !d.consume(call.ID) {
		d.logger.Debug("ignoring repeated tool call", "tool", call.Name, "tool_call_id", call.ID)
		return
	}

	start := time.Now()
	result := d.safeExecute(ctx, call)
	if d.poster == nil {
		return
	}
	if err := d.poster.PostToolResult(ctx, call, result); err != nil {
		d.logger.Warn("posting tool result failed",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"error", err,
		)
		return
	}
	d.logger.Debug("tool result posted",
		"tool", call.Name,
		"tool_call_id", call.ID,
		"duration", time.Since(start),
	)
}

// consume records id and reports whether it was new.
func (d *Dispatcher) consume(id string) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.consumed[id] {
		return false
	}
	if len(d.order) >= rememberedCalls {
		delete(d.consumed, d.order[0])
		d.order = d.order[1:]
	}
	d.consumed[id] = true
	d.order = append(d.order, id)
	return true
}

// safeExecute is Execute with a panic turned into ToolFailed.
func (d *Dispatcher) safeExecute(ctx context.Context, call ToolCall) (result any) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error("tool panicked",
				"tool", call.Name,
				"tool_call_id", call.ID,
				"panic", recovered,
			)
			result = ToolFailed
		}
	}()
	return d.Execute(ctx, call)
}

// Execute runs call and returns its result without posting it. A tool
// whose capability flag is off yields a denial message; every other
// failure yields a placeholder result, never an error.
func (d *Dispatcher) Execute(ctx context.Context, call ToolCall) any {
	service := d.Service()
	required, ok := tools[call.Name]
	if !ok {
		return fmt.Sprintf("Unknown tool %s.", call.Name)
	}
	if (required == codeCapability && !service.CodeAvailable) || (required == logsCapability && !service.LogsAvailable) {
		return denial(call.Name, service.WindowID)
	}

	args := parseArgs(call.Args)
	switch call.Name {
	case ToolReadFile:
		return d.readFile(service, args)
	case ToolGrepSearch:
		return d.grepSearch(ctx, service, args)
	case ToolReadLogs:
		page, _ := intArg(args, "pageNumber")
		return d.withLogs(ctx, service, func(logs string) string { return capture.Page(logs, page) })
	case ToolTailLogs:
		n, ok := intArg(args, "n")
		if !ok || n <= 0 {
			return capture.InvalidTailN
		}
		return d.withLogs(ctx, service, func(logs string) string { return capture.Tail(logs, n) })
	case ToolGrepLogs:
		pattern, _ := args["pattern"].(string)
		if strings.TrimSpace(pattern) == "" {
			return capture.InvalidGrepTerm
		}
		before := intArgOr(args, "before", defaultGrepContext)
		after := intArgOr(args, "after", defaultGrepContext)
		return d.withLogs(ctx, service, func(logs string) string { return capture.Grep(logs, pattern, before, after) })
	case ToolRecentErrors:
		n, ok := intArg(args, "n")
		if !ok || n <= 0 {
			return capture.InvalidErrorsN
		}
		return d.withLogs(ctx, service, func(logs string) string { return capture.RecentErrors(logs, n) })
	}
	return ""
}

func denial(tool string, windowID int64) string {
	serviceID := "unknown"
	if windowID > 0 {
		serviceID = strconv.FormatInt(windowID, 10)
	}
	return fmt.Sprintf("No Access to execute %s. with the serviceId of %s.", tool, serviceID)
}

// readFile returns a numbered window of a file. Relative paths are
// resolved against the service's directory.
func (d *Dispatcher) readFile(service relay.Service, args map[string]any) string {
	path, _ := args["filePath"].(string)
	line, ok := intArg(args, "lineNumber")
	if path == "" || !ok {
		return ""
	}
	if !filepath.IsAbs(path) && service.Path != "" {
		path = filepath.Join(service.Path, path)
	}
	before := intArgDefault(args, "before", defaultReadWindow)
	after := intArgDefault(args, "after", defaultReadWindow)
	return codesearch.ReadLines(path, line, before, after)
}

// grepSearch searches the service's directory. Failures return an
// empty result list.
func (d *Dispatcher) grepSearch(ctx context.Context, service relay.Service, args map[string]any) []codesearch.Result {
	query, _ := args["searchTerm"].(string)
	root := service.Path
	if root == "" {
		root, _ = os.Getwd()
	}
	caseSensitive, _ := args["case_sensitive"].(bool)
	var fileTypes []string
	if list, ok := args["file_types"].([]any); ok {
		for _, item := range list {
			if fileType, ok := item.(string); ok && fileType != "" {
				fileTypes = append(fileTypes, fileType)
			}
		}
	}

	results, err := codesearch.Search(ctx, query, codesearch.Options{
		Root:          root,
		MaxResults:    intArgDefault(args, "max_results", codesearch.DefaultMaxResults),
		CaseSensitive: caseSensitive,
		FileTypes:     fileTypes,
	})
	if err != nil {
		d.logger.Warn("grep_search failed", "query", query, "root", root, "error", err)
		return []codesearch.Result{}
	}
	if results == nil {
		results = []codesearch.Result{}
	}
	return results
}

// withLogs applies query to the service's logs, or returns NoLogLines
// when there are none.
func (d *Dispatcher) withLogs(ctx context.Context, service relay.Service, query func(string) string) string {
	logs := d.logs(ctx, service.WindowID)
	if strings.TrimSpace(logs) == "" {
		return NoLogLines
	}
	return query(logs)
}

// logs returns the local capture, falling back to the relay's buffer
// for the instance when the capture is empty.
func (d *Dispatcher) logs(ctx context.Context, windowID int64) string {
	if d.capture != nil {
		if local := d.capture.String(); local != "" {
			return local
		}
	}
	if d.relay == nil || windowID <= 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, relayFetchTimeout)
	defer cancel()
	logs, err := d.relay.FetchLogs(ctx, windowID)
	if err != nil {
		d.logger.Warn("fetching logs from relay failed", "window_id", windowID, "error", err)
		return ""
	}
	return logs
}

func parseArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil || args == nil {
			return map[string]any{}
		}
	}
	return args
}

// intArg reads an integer argument sent either as a number or as a
// numeric string. Fractions are truncated, and a string is read up to
// its first non-digit ("10 lines" is 10).
func intArg(args map[string]any, key string) (int, bool) {
	switch value := args[key].(type) {
	case string:
		value = strings.TrimSpace(value)
		end := 0
		for end < len(value) && (value[end] >= '0' && value[end] <= '9' || end == 0 && (value[0] == '-' || value[0] == '+')) {
			end++
		}
		n, err := strconv.Atoi(value[:end])
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		return int(value), true
	default:
		n, ok := codec.Number(value)
		return int(n), ok
	}
}

// intArgDefault is intArg with fallback for absent, unparseable or
// zero values.
func intArgDefault(args map[string]any, key string, fallback int) int {
	if n, ok := intArg(args, key); ok && n != 0 {
		return n
	}
	return fallback
}

// intArgOr is intArg with fallback for absent or unparseable values.
// An explicit zero is kept.
func intArgOr(args map[string]any, key string, fallback int) int {
	if n, ok := intArg(args, key); ok {
		return n
	}
	return fallback
}
