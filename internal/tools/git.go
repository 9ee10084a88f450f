package tools

import (
	"context"
	"fmt"
	"os/exec"
	"path"
	"sort"
	"strings"
)

// ChangeSource lists files changed in the working tree.
type ChangeSource interface {
	ChangedFiles(ctx context.Context) ([]string, error)
}

// GitChanges reads uncommitted changes with git. It never writes to the
// repository.
type GitChanges struct {
	Dir string
}

// ChangedFiles returns staged and unstaged paths relative to the repository
// root, sorted and deduplicated.
func (g GitChanges) ChangedFiles(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, args := range [][]string{
		{"diff", "--name-only"},
		{"diff", "--name-only", "--cached"},
	} {
		out, err := g.git(ctx, args...)
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(out, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				seen[line] = true
			}
		}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func (g GitChanges) git(ctx context.Context, args ...string) (string, error) {
	if g.Dir != "" {
		args = append([]string{"-C", g.Dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

var nonCodeExt = map[string]bool{
	".md": true, ".txt": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".lock": true, ".sum": true, ".mod": true, ".svg": true,
	".png": true, ".jpg": true, ".gif": true,
}

// TestTodos suggests one test todo per changed source file. Test files and
// docs or data files are skipped.
func TestTodos(files []string) []string {
	todos := []string{}
	for _, f := range files {
		ext := strings.ToLower(path.Ext(f))
		base := strings.ToLower(path.Base(f))
		if ext == "" || nonCodeExt[ext] || isTestFile(base) {
			continue
		}
		todos = append(todos, fmt.Sprintf("Add tests covering changes in %s", f))
	}
	return todos
}

func isTestFile(base string) bool {
	return strings.HasSuffix(base, "_test.go") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") ||
		strings.HasPrefix(base, "test_")
}
