// Package executor runs submitted source code in a scratch directory with a
// wall-clock limit.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultLanguage is used when a request names no language or an unknown one.
const DefaultLanguage = "python"

// DefaultTimeout bounds a whole run, build steps included.
const DefaultTimeout = 10 * time.Second

// TimedOutOutput is reported as the result of a run that hit the limit.
const TimedOutOutput = "Execution timed out"

// Recipe describes how to run one language.
type Recipe struct {
	// File is the source file name written into the scratch directory.
	File string
	// Steps are the commands to run in order; each sees the scratch
	// directory as its working directory.
	Steps [][]string
}

// Recipes maps a language to its recipe.
var Recipes = map[string]Recipe{
	"python": {
		File:  "main.py",
		Steps: [][]string{{"python3", "main.py"}},
	},
	"javascript": {
		File:  "main.js",
		Steps: [][]string{{"node", "main.js"}},
	},
	"java": {
		File:  "Main.java",
		Steps: [][]string{{"java", "Main.java"}},
	},
	"cpp": {
		File: "main.cpp",
		Steps: [][]string{
			{"g++", "main.cpp", "-o", "main"},
			{"./main"},
		},
	},
}

// Runner runs argv in dir and returns its combined stdout and stderr.
type Runner func(ctx context.Context, dir string, argv []string) ([]byte, error)

// CommandRunner runs argv as a subprocess.
func CommandRunner(ctx context.Context, dir string, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Service executes code on behalf of the relay.
type Service struct {
	timeout time.Duration
	run     Runner
	tempDir string
}

// NewService returns an executor with the given limit. A zero timeout uses
// DefaultTimeout.
func NewService(timeout time.Duration) *Service {
	return NewServiceWithRunner(timeout, CommandRunner)
}

// NewServiceWithRunner is NewService with a custom command runner.
func NewServiceWithRunner(timeout time.Duration, run Runner) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{timeout: timeout, run: run}
}

// Timeout returns the per-run limit.
func (s *Service) Timeout() time.Duration {
	return s.timeout
}

// Run executes code and returns its combined output. A program that exits
// non-zero, fails to compile, or times out still yields a nil error; the
// error return is reserved for failures to run anything at all. Blank code
// is run like any other source.
func (s *Service) Run(ctx context.Context, language, code string) (string, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	recipe, ok := Recipes[language]
	if !ok {
		language = DefaultLanguage
		recipe = Recipes[DefaultLanguage]
	}

	dir, err := os.MkdirTemp(s.tempDir, "coderoom-run-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, recipe.File), []byte(code), 0o600); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	var output strings.Builder
	for _, argv := range recipe.Steps {
		out, err := s.run(runCtx, dir, argv)
		output.Write(out)

		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			log.Printf("[executor] language=%s timed out after %s", language, s.timeout)
			return TimedOutOutput, nil
		}
		if err == nil {
			continue
		}

		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) {
			log.Printf("[executor] language=%s step=%s exit=%d", language, argv[0], exitErr.ExitCode())
			return output.String(), nil
		}
		return "", fmt.Errorf("run %s: %w", argv[0], err)
	}

	log.Printf("[executor] language=%s finished in %s", language, time.Since(started).Round(time.Millisecond))
	return output.String(), nil
}
