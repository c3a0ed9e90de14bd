package exec

import (
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
)

// ResolveCommand locates the executable for a binding. Bare names are looked
// up on PATH, absolute paths are used as-is, and relative paths resolve
// against the definition directory and may not escape it.
func ResolveCommand(dir, command string) (string, error) {
	cleanInput := strings.TrimSpace(command)
	if cleanInput == "" {
		return "", fmt.Errorf("command is required")
	}

	if filepath.IsAbs(cleanInput) {
		return checkExecutable(filepath.Clean(cleanInput))
	}

	if !strings.ContainsAny(cleanInput, `/\`) {
		path, err := osexec.LookPath(cleanInput)
		if err != nil {
			return "", fmt.Errorf("command %q not found on PATH: %w", cleanInput, err)
		}
		return path, nil
	}

	rel := strings.ReplaceAll(cleanInput, "\\", "/")
	rel = strings.TrimPrefix(rel, "./")
	cleanRel := filepath.Clean(filepath.FromSlash(rel))
	if cleanRel == "." || cleanRel == ".." || strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("command %q escapes the definition directory", cleanInput)
	}

	dirAbs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve definition directory: %w", err)
	}
	return checkExecutable(filepath.Join(dirAbs, cleanRel))
}

func checkExecutable(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("command %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("command %s is a directory", path)
	}
	return path, nil
}
