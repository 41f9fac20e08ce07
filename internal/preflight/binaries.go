package preflight

import (
	"fmt"
	"os/exec"
	"strings"

	"tmbatch/internal/config"
)

// Binary names an external command the run shells out to.
type Binary struct {
	Name     string
	Command  string
	Optional bool
}

// CheckBinary resolves the command on PATH. A passing result carries the
// resolved path as its detail.
func CheckBinary(b Binary) Result {
	res := Result{Name: b.Name, Optional: b.Optional}
	command := strings.TrimSpace(b.Command)
	if command == "" {
		res.Detail = "command not configured"
		return res
	}
	path, err := exec.LookPath(command)
	if err != nil {
		res.Detail = fmt.Sprintf("binary %q not found", command)
		return res
	}
	res.Passed = true
	res.Detail = path
	return res
}

// CheckSystemDeps evaluates the external commands a run needs. Neither
// blocks: a missing submission command fails each submission individually
// and the matching tool only runs on compute nodes.
func CheckSystemDeps(cfg *config.Config) []Result {
	return []Result{
		CheckBinary(Binary{Name: "Submission command", Command: cfg.Slurm.SubmitCommand, Optional: true}),
		CheckBinary(Binary{Name: "Template matching tool", Command: cfg.Matching.ToolBinary, Optional: true}),
	}
}
