package jobspec

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"text/template"
)

// ScriptName returns the submission script file name for id.
func ScriptName(id string) string {
	return "submit_" + id + ".sh"
}

// JobName returns the SLURM job name for id.
func JobName(id string) string {
	return "pytom_" + id
}

// The following fields are available to the script template:
//
// JobName      SLURM job name
// Directives   #SBATCH resource directives after the fixed -o/-D/-J block
// Modules      environment modules loaded before the tool runs
// Invocation   tool invocation, one flag group per line
var scriptTemplate = template.Must(template.New("script").Parse(`#!/bin/bash -l

#SBATCH -o pytom.out%j
#SBATCH -D ./
#SBATCH -J {{.JobName}}
{{range .Directives}}#SBATCH {{.}}
{{end}}
{{range .Modules}}ml {{.}}
{{end}}{{if .Modules}}
{{end}}{{range .Invocation}}{{.}}
{{end}}`))

type scriptData struct {
	JobName    string
	Directives []string
	Modules    []string
	Invocation []string
}

// Directives returns the resource directive values in script order. Empty
// gres, mail-type, and qos values are omitted.
func (d *Descriptor) Directives() []string {
	s := d.cfg.Slurm
	out := []string{
		"--partition=" + s.Partition,
		"--ntasks=" + strconv.Itoa(s.NTasks),
		"--nodes=" + strconv.Itoa(s.Nodes),
		"--ntasks-per-node=" + strconv.Itoa(s.NTasksPerNode),
		"--cpus-per-task=" + strconv.Itoa(s.CPUsPerTask),
	}
	if s.Gres != "" {
		out = append(out, "--gres="+s.Gres)
	}
	if s.MailType != "" {
		out = append(out, "--mail-type="+s.MailType)
	}
	out = append(out, fmt.Sprintf("--mem=%dG", s.MemGB))
	if s.QOS != "" {
		out = append(out, "--qos="+s.QOS)
	}
	out = append(out, "--time="+s.Time)
	return out
}

// Invocation returns the tool command as script lines: the binary followed by
// one flag group per line, every line but the last ending in " \".
func (d *Descriptor) Invocation(t Target) []string {
	groups := d.Groups(t)
	lines := make([]string, 0, len(groups)+1)
	lines = append(lines, ShellQuote(d.toolBinary))
	for _, group := range groups {
		quoted := make([]string, len(group))
		for i, token := range group {
			quoted[i] = ShellQuote(token)
		}
		lines = append(lines, strings.Join(quoted, " "))
	}
	for i := 0; i < len(lines)-1; i++ {
		lines[i] += ` \`
	}
	return lines
}

// Render writes the submission script for t.
func (d *Descriptor) Render(w io.Writer, t Target) error {
	data := scriptData{
		JobName:    JobName(t.ID.String()),
		Directives: d.Directives(),
		Modules:    d.modules,
		Invocation: d.Invocation(t),
	}
	if err := scriptTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render script for %s: %w", t.ID, err)
	}
	return nil
}

// Script renders the submission script for t into memory.
func (d *Descriptor) Script(t Target) ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:@%+=,-]+$`)

// ShellQuote returns token unchanged when it needs no quoting, otherwise
// single-quoted for POSIX shells.
func ShellQuote(token string) string {
	if token != "" && shellSafe.MatchString(token) {
		return token
	}
	return "'" + strings.ReplaceAll(token, "'", `'\''`) + "'"
}
