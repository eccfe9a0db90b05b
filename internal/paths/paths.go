package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	baseDirName     = ".genrepl"
	projectsDirName = "projects"
	contextFileName = "context.json"
	historyFileName = "history"

	dirMode = 0o700
)

var dashRuns = regexp.MustCompile(`-+`)

// Project groups the per-project storage locations: session ledgers, the
// persisted context window, and prompt history all live under one directory
// derived from the working directory.
type Project struct {
	Name string
	Dir  string
}

// ForWorkingDir resolves (and creates) the storage directory for the
// project rooted at workDir.
func ForWorkingDir(workDir string) (Project, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Project{}, fmt.Errorf("resolve home directory: %w", err)
	}

	abs, err := filepath.Abs(workDir)
	if err != nil {
		return Project{}, fmt.Errorf("resolve project directory: %w", err)
	}

	name := ProjectName(abs)
	dir := filepath.Join(homeDir, baseDirName, projectsDirName, name)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return Project{}, fmt.Errorf("create project directory: %w", err)
	}

	return Project{Name: name, Dir: dir}, nil
}

// ProjectName flattens an absolute path into a directory-name-safe slug:
// separators become dashes and runs of dashes collapse.
func ProjectName(absPath string) string {
	name := strings.TrimPrefix(filepath.ToSlash(absPath), "/")
	name = strings.ReplaceAll(name, "/", "-")
	return dashRuns.ReplaceAllString(name, "-")
}

func (p Project) ContextFile() string {
	return filepath.Join(p.Dir, contextFileName)
}

func (p Project) HistoryFile() string {
	return filepath.Join(p.Dir, historyFileName)
}

func (p Project) SessionFile(sessionID string) string {
	return filepath.Join(p.Dir, sessionID+".jsonl")
}
