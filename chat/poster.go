// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openbug-ai/cli/lib/netutil"
	"github.com/openbug-ai/cli/lib/version"
)

// toolResultPath is appended to the API base URL.
const toolResultPath = "/tool/toolFunctionCall"

// toolResultFunction is the function_name every result is posted
// under.
const toolResultFunction = "tool_function_call"

// postTimeout bounds one result post.
const postTimeout = 30 * time.Second

// HTTPPoster posts tool results to the backend's HTTP API.
type HTTPPoster struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPPoster returns a poster for the API rooted at apiBaseURL. A
// nil httpClient uses one with a 30 second timeout.
func NewHTTPPoster(apiBaseURL string, httpClient *http.Client) *HTTPPoster {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: postTimeout}
	}
	return &HTTPPoster{
		endpoint:   strings.TrimRight(apiBaseURL, "/") + toolResultPath,
		httpClient: httpClient,
	}
}

type toolResultBody struct {
	ToolCallID   string          `json:"tool_call_id"`
	ResultArgs   any             `json:"resultArgs"`
	Args         json.RawMessage `json:"args"`
	FunctionName string          `json:"function_name"`
}

// PostToolResult implements ResultPoster.
func (p *HTTPPoster) PostToolResult(ctx context.Context, call ToolCall, result any) error {
	args := call.Args
	if len(args) == 0 {
		args = nil
	}
	encoded, err := json.Marshal(toolResultBody{
		ToolCallID:   call.ID,
		ResultArgs:   result,
		Args:         args,
		FunctionName: toolResultFunction,
	})
	if err != nil {
		return fmt.Errorf("encoding result of %s: %w", call.ID, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())

	response, err := p.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("posting result of %s: %w", call.ID, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("posting result of %s: HTTP %d: %s", call.ID, response.StatusCode, netutil.ErrorBody(response.Body))
	}
	netutil.Drain(response.Body)
	return nil
}
