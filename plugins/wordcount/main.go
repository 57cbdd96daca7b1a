// Command wordcount is an example exec agent for meshmgr. It reads one
// request from stdin and writes one response to stdout.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mattjoyce/meshmgr/internal/agent/execagent"
)

const countTool = "count_words"

func main() {
	resp := handle(os.Stdin)
	_ = json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(r io.Reader) execagent.Response {
	var req execagent.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return errResp(fmt.Sprintf("invalid request JSON: %v", err))
	}
	if req.Command != "invoke" {
		return errResp(fmt.Sprintf("unknown command %q", req.Command))
	}

	text, err := textFrom(req.Input)
	if err != nil {
		return errResp(err.Error())
	}

	words := len(strings.Fields(text))
	lines := 0
	if text != "" {
		lines = strings.Count(text, "\n") + 1
	}
	return execagent.Response{
		Status: "ok",
		Output: map[string]any{
			"response": fmt.Sprintf("%d words, %d lines", words, lines),
			"data": map[string]any{
				"words": words,
				"lines": lines,
				"chars": utf8.RuneCountInString(text),
			},
		},
		Logs: []execagent.LogEntry{{Level: "debug", Message: fmt.Sprintf("counted %d words for %s", words, req.AgentID)}},
	}
}

// textFrom prefers a direct tool call over the free-text query.
func textFrom(input map[string]any) (string, error) {
	if tool, _ := input["tool"].(string); tool != "" {
		if tool != countTool {
			return "", fmt.Errorf("unknown tool %q", tool)
		}
		args, _ := input["tool_arguments"].(map[string]any)
		text, ok := args["text"].(string)
		if !ok {
			return "", fmt.Errorf("tool %s requires a text argument", countTool)
		}
		return text, nil
	}

	query, ok := input["query"].(string)
	if !ok {
		return "", fmt.Errorf("query is required")
	}
	return query, nil
}

func errResp(msg string) execagent.Response {
	return execagent.Response{Status: "error", Error: msg}
}
