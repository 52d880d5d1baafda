// Package shim implements the agent-side half of the dispatcher protocol
// (spec §4.12 / the expanded component tree's shim/ package): it serializes
// an argv invocation plus any --body-file payloads over HTTP to the
// dispatcher, then reproduces the advertised exit code and output exactly
// as a real git/gh invocation would. Grounded on
// calvinalkan-agent-sandbox's cmd/agent-sandbox/multicall.go for the
// multicall/dispatch shape; the wire format itself mirrors
// pkg/protocol's GitRequest/GhRequest/CommandResult.
package shim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// Client talks to the dispatcher on behalf of a wrapped git/gh invocation.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a Client pointed at the dispatcher's base URL (e.g. from
// YOLO_CAGE_DISPATCHER_ADDR).
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{}}
}

// RunGit posts a git invocation to the dispatcher and returns its result.
func (c *Client) RunGit(ctx context.Context, args []string, cwd string) (protocol.CommandResult, error) {
	return c.post(ctx, "/git", protocol.GitRequest{Args: args, Cwd: cwd})
}

// RunGh posts a gh invocation to the dispatcher, including any --body-file
// payloads and piped stdin the caller collected locally.
func (c *Client) RunGh(ctx context.Context, args []string, cwd string, files map[string]string, stdin *string) (protocol.CommandResult, error) {
	return c.post(ctx, "/gh", protocol.GhRequest{Args: args, Cwd: cwd, Files: files, Stdin: stdin})
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (protocol.CommandResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return protocol.CommandResult{}, fmt.Errorf("shim: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return protocol.CommandResult{}, fmt.Errorf("shim: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return protocol.CommandResult{}, fmt.Errorf("shim: dispatcher unreachable: %w", err)
	}
	defer resp.Body.Close()

	output, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.CommandResult{}, fmt.Errorf("shim: read response: %w", err)
	}

	exitCode, err := strconv.Atoi(resp.Header.Get(protocol.ExitCodeHeader))
	if err != nil {
		// The dispatcher omits the header on its JSON error responses
		// (unregistered caller, malformed request, internal failure);
		// surface those as 1.
		exitCode = 1
	}

	return protocol.CommandResult{Output: string(output), ExitCode: exitCode}, nil
}

// CollectBodyFiles scans argv for "--body-file <path>" pairs and reads each
// referenced file's content (except "-", which the caller reads from
// stdin separately), so the dispatcher never needs filesystem access to the
// agent's workspace for file payloads it doesn't already have mounted.
// Grounded on original_source/dispatcher/gh.py's
// _rewrite_args_with_temp_files counterpart on the sending side.
func CollectBodyFiles(args []string) (map[string]string, error) {
	files := make(map[string]string)
	for i := 0; i < len(args)-1; i++ {
		if args[i] != "--body-file" {
			continue
		}
		path := args[i+1]
		if path == "-" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("shim: read --body-file %q: %w", path, err)
		}
		files[path] = string(content)
	}
	return files, nil
}

// ReadStdinIfPiped reads all of stdin and returns it, used when argv
// contains "--body-file -" so the piped body can travel with the request.
func ReadStdinIfPiped(args []string, stdin io.Reader) (*string, error) {
	for i, a := range args {
		if a == "--body-file" && i+1 < len(args) && args[i+1] == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, fmt.Errorf("shim: read piped stdin: %w", err)
			}
			s := string(data)
			return &s, nil
		}
	}
	return nil, nil
}
