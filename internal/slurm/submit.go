package slurm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
)

// ErrSubmission marks a submission command that failed to launch or exited
// non-zero.
var ErrSubmission = errors.New("submission failed")

// DefaultCommand is the queue submission binary.
const DefaultCommand = "sbatch"

// Result describes one submission attempt.
type Result struct {
	Command  []string
	JobID    string
	Stdout   string
	Stderr   string
	ExitCode int
	DryRun   bool
}

// Submitter hands a script to the queue manager.
type Submitter interface {
	Submit(ctx context.Context, scriptPath string) (Result, error)
}

// Output is the captured result of one command execution.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (Output, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client submits scripts with a real queue command.
type Client struct {
	binary string
	exec   Executor
}

// New constructs a submission client. An empty binary falls back to sbatch.
func New(binary string, opts ...Option) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultCommand
	}
	client := &Client{binary: binary, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Binary returns the submission command.
func (c *Client) Binary() string { return c.binary }

// Submit runs `<binary> scriptPath` once.
func (c *Client) Submit(ctx context.Context, scriptPath string) (Result, error) {
	result := Result{Command: []string{c.binary, scriptPath}}
	out, err := c.exec.Run(ctx, c.binary, []string{scriptPath})
	result.Stdout = strings.TrimSpace(out.Stdout)
	result.Stderr = strings.TrimSpace(out.Stderr)
	result.ExitCode = out.ExitCode
	result.JobID = ParseJobID(result.Stdout)
	if err != nil {
		detail := result.Stderr
		if detail == "" {
			detail = err.Error()
		}
		return result, fmt.Errorf("%w: %s %s (exit %d): %s", ErrSubmission, c.binary, scriptPath, result.ExitCode, detail)
	}
	if result.ExitCode != 0 {
		return result, fmt.Errorf("%w: %s %s exited %d: %s", ErrSubmission, c.binary, scriptPath, result.ExitCode, result.Stderr)
	}
	return result, nil
}

var jobIDPattern = regexp.MustCompile(`Submitted batch job (\d+)`)

// ParseJobID extracts the numeric job id from sbatch output.
func ParseJobID(stdout string) string {
	m := jobIDPattern.FindStringSubmatch(stdout)
	if m == nil {
		return ""
	}
	return m[1]
}

// DryRun reports the command it would run without executing it.
type DryRun struct {
	Binary string
	// Out receives one "Would submit" line per script. Nil discards.
	Out io.Writer
}

// Submit records the would-be command.
func (d DryRun) Submit(_ context.Context, scriptPath string) (Result, error) {
	binary := strings.TrimSpace(d.Binary)
	if binary == "" {
		binary = DefaultCommand
	}
	if d.Out != nil {
		fmt.Fprintf(d.Out, "Would submit: %s %s\n", binary, scriptPath)
	}
	return Result{Command: []string{binary, scriptPath}, DryRun: true}, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (Output, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		} else {
			out.ExitCode = -1
		}
		return out, err
	}
	return out, nil
}
