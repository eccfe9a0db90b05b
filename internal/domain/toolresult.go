package domain

// ToolResult is the tagged outcome of a sandboxed tool invocation. Failures
// are ordinary content fed back to the model, not orchestration errors.
type ToolResult struct {
	Output string
	Err    string
}

func ToolOK(output string) ToolResult {
	return ToolResult{Output: output}
}

func ToolError(message string) ToolResult {
	return ToolResult{Err: message}
}

func (r ToolResult) Failed() bool {
	return r.Err != ""
}

// Text returns the content to forward upstream regardless of outcome.
func (r ToolResult) Text() string {
	if r.Failed() {
		return r.Err
	}
	return r.Output
}
