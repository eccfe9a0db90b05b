package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/brelli/genrepl/internal/domain"
	"github.com/brelli/genrepl/internal/ports"
)

const (
	writeDirMode  = 0o755
	writeFileMode = 0o644

	maxSearchMatches = 100
)

// Runner executes file tools confined to a root directory fixed at
// construction. Violations and operational failures come back as tool
// results so the model can react to them; only an unusable runner returns a
// Go error.
type Runner struct {
	root string
}

var _ ports.ToolRunner = (*Runner)(nil)

func NewRunner(root string) (*Runner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}

	return &Runner{root: filepath.Clean(abs)}, nil
}

func (r *Runner) Root() string {
	return r.root
}

func (r *Runner) Run(ctx context.Context, tool domain.ToolName, args map[string]string) (domain.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolResult{}, err
	}

	switch tool {
	case domain.ToolListFiles:
		return r.listFiles(args["pattern"]), nil
	case domain.ToolReadFile:
		return r.readFile(args["file_path"]), nil
	case domain.ToolWriteFile:
		content, ok := args["content"]
		if !ok {
			return domain.ToolError("write_file requires content"), nil
		}
		return r.writeFile(args["file_path"], content), nil
	case domain.ToolSearchCode:
		return r.searchCode(args["pattern"], args["file_pattern"]), nil
	default:
		return domain.ToolError(fmt.Sprintf("unknown tool: %s", tool)), nil
	}
}

func (r *Runner) listFiles(pattern string) domain.ToolResult {
	if pattern == "" {
		pattern = "*"
	}
	if err := validateRelative(pattern); err != nil {
		return domain.ToolError(err.Error())
	}

	matches, err := filepath.Glob(filepath.Join(r.root, pattern))
	if err != nil {
		return domain.ToolError(fmt.Sprintf("invalid pattern %q: %v", pattern, err))
	}
	if len(matches) == 0 {
		return domain.ToolOK(fmt.Sprintf("No files matching %q", pattern))
	}

	names := make([]string, 0, len(matches))
	for _, match := range matches {
		rel, err := filepath.Rel(r.root, match)
		if err != nil {
			continue
		}
		if info, statErr := os.Stat(match); statErr == nil && info.IsDir() {
			rel += string(os.PathSeparator)
		}
		names = append(names, rel)
	}
	sort.Strings(names)

	return domain.ToolOK(strings.Join(names, "\n"))
}

func (r *Runner) readFile(path string) domain.ToolResult {
	full, err := r.resolve(path)
	if err != nil {
		return domain.ToolError(err.Error())
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return domain.ToolError(fmt.Sprintf("error reading file: %v", err))
	}

	return domain.ToolOK(string(data))
}

func (r *Runner) writeFile(path, content string) domain.ToolResult {
	full, err := r.resolve(path)
	if err != nil {
		return domain.ToolError(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(full), writeDirMode); err != nil {
		return domain.ToolError(fmt.Sprintf("error creating directory: %v", err))
	}
	if err := os.WriteFile(full, []byte(content), writeFileMode); err != nil {
		return domain.ToolError(fmt.Sprintf("error writing file: %v", err))
	}

	return domain.ToolOK(fmt.Sprintf("Wrote %d bytes to %s", len(content), path))
}

func (r *Runner) searchCode(pattern, filePattern string) domain.ToolResult {
	if pattern == "" {
		return domain.ToolError("search_code requires a pattern")
	}
	if filePattern == "" {
		filePattern = "*"
	}
	if err := validateRelative(filePattern); err != nil {
		return domain.ToolError(err.Error())
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return domain.ToolError(fmt.Sprintf("invalid search pattern %q: %v", pattern, err))
	}

	matches, err := filepath.Glob(filepath.Join(r.root, filePattern))
	if err != nil {
		return domain.ToolError(fmt.Sprintf("invalid file pattern %q: %v", filePattern, err))
	}

	var lines []string
	for _, match := range matches {
		info, statErr := os.Stat(match)
		if statErr != nil || info.IsDir() {
			continue
		}
		data, readErr := os.ReadFile(match)
		if readErr != nil {
			continue
		}
		rel, relErr := filepath.Rel(r.root, match)
		if relErr != nil {
			continue
		}

		for i, line := range strings.Split(string(data), "\n") {
			if !re.MatchString(line) {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
			if len(lines) >= maxSearchMatches {
				lines = append(lines, fmt.Sprintf("... truncated at %d matches", maxSearchMatches))
				return domain.ToolOK(strings.Join(lines, "\n"))
			}
		}
	}

	if len(lines) == 0 {
		return domain.ToolOK(fmt.Sprintf("No matches for %q in %q", pattern, filePattern))
	}

	return domain.ToolOK(strings.Join(lines, "\n"))
}

// resolve validates path and maps it inside the sandbox root.
func (r *Runner) resolve(path string) (string, error) {
	if err := validateRelative(path); err != nil {
		return "", err
	}

	full := filepath.Clean(filepath.Join(r.root, path))
	if full != r.root && !strings.HasPrefix(full, r.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("security error: path escapes sandbox: %s", path)
	}

	if info, err := os.Lstat(full); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("security error: symlinks not allowed: %s", path)
	}

	return full, nil
}

func validateRelative(path string) error {
	if path == "" {
		return fmt.Errorf("security error: empty path")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("security error: absolute paths not allowed: %s", path)
	}
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return fmt.Errorf("security error: parent directory references not allowed: %s", path)
		}
	}

	return nil
}

// Schemas describes the tools offered to the remote model.
func (r *Runner) Schemas() []ports.ToolSchema {
	return []ports.ToolSchema{
		{
			Name:        domain.ToolListFiles,
			Description: "List files matching a glob pattern inside the workspace",
			Parameters:  map[string]string{"pattern": "Glob pattern, e.g. '*.go' or 'src/*'"},
		},
		{
			Name:        domain.ToolReadFile,
			Description: "Read the contents of a file inside the workspace",
			Parameters:  map[string]string{"file_path": "Path to the file, relative to the workspace"},
		},
		{
			Name:        domain.ToolWriteFile,
			Description: "Create or overwrite a file inside the workspace",
			Parameters: map[string]string{
				"file_path": "Path to the file, relative to the workspace",
				"content":   "Full content to write",
			},
		},
		{
			Name:        domain.ToolSearchCode,
			Description: "Search file contents with a regular expression",
			Parameters: map[string]string{
				"pattern":      "Regular expression to search for",
				"file_pattern": "Glob restricting which files to search, e.g. '*.go'",
			},
		},
	}
}
