package agent

import (
	"bytes"
	"context"
	"os/exec"
)

// ShellResult is the {code,stdout,stderr} response payload shared by
// run and launch.
type ShellResult struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// runShellCommand executes cmd in pwd via /bin/sh -c, capturing output.
// Unlike a sandboxed command runner this has no deny-pattern guard: an
// agent that receives the run verb has already passed the predicate
// filter, and commands are issued by the controller's operator, not by
// an untrusted remote party.
func runShellCommand(ctx context.Context, cmd, pwd string) ShellResult {
	c := exec.CommandContext(ctx, "/bin/sh", "-c", cmd)
	c.Dir = pwd

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	return ShellResult{Code: code, Stdout: stdout.String(), Stderr: stderr.String()}
}

// spawnShellCommand starts cmd in pwd and does not wait for it, matching
// the fire-and-forget spawn verb.
func spawnShellCommand(cmd, pwd string) error {
	c := exec.Command("/bin/sh", "-c", cmd)
	c.Dir = pwd
	return c.Start()
}
