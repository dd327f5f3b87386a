// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openbug-ai/cli/lib/version"
)

func TestHTTPPoster(t *testing.T) {
	t.Parallel()

	type received struct {
		path      string
		userAgent string
		body      map[string]any
	}
	requests := make(chan received, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		requests <- received{path: r.URL.Path, userAgent: r.Header.Get("User-Agent"), body: body}
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	poster := NewHTTPPoster(server.URL+"/v2/api/", nil)
	call := ToolCall{ID: "tc-7", Name: ToolTailLogs, Args: json.RawMessage(`{"n":5}`)}
	if err := poster.PostToolResult(context.Background(), call, "last lines"); err != nil {
		t.Fatalf("PostToolResult: %v", err)
	}

	request := <-requests
	if request.path != "/v2/api/tool/toolFunctionCall" {
		t.Errorf("path: got %q", request.path)
	}
	if request.userAgent != version.UserAgent() {
		t.Errorf("User-Agent: got %q", request.userAgent)
	}
	if request.body["tool_call_id"] != "tc-7" || request.body["resultArgs"] != "last lines" || request.body["function_name"] != "tool_function_call" {
		t.Errorf("body: %v", request.body)
	}
	if args, _ := request.body["args"].(map[string]any); args["n"] != float64(5) {
		t.Errorf("args: got %v", request.body["args"])
	}
}

func TestHTTPPosterNullArgs(t *testing.T) {
	t.Parallel()
	bodies := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- string(body)
	}))
	defer server.Close()

	poster := NewHTTPPoster(server.URL, nil)
	if err := poster.PostToolResult(context.Background(), ToolCall{ID: "x", Args: json.RawMessage{}}, []string{}); err != nil {
		t.Fatalf("PostToolResult: %v", err)
	}
	body := <-bodies
	if !strings.Contains(body, `"args":null`) || !strings.Contains(body, `"resultArgs":[]`) {
		t.Errorf("body: %s", body)
	}
}

func TestHTTPPosterErrorStatus(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tool call expired", http.StatusGone)
	}))
	defer server.Close()

	err := NewHTTPPoster(server.URL, nil).PostToolResult(context.Background(), ToolCall{ID: "late"}, "x")
	if err == nil {
		t.Fatal("expected an error for HTTP 410")
	}
	if !strings.Contains(err.Error(), "HTTP 410") || !strings.Contains(err.Error(), "tool call expired") {
		t.Errorf("error: %v", err)
	}
}
