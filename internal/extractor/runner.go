package extractor

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after the process
// group has been killed.
const waitDelay = 5 * time.Second

// CommandRunner defines the interface for running external commands
// This allows mocking exec.Command in tests
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecCommandRunner is the production implementation using os/exec. The
// child gets its own process group and the whole group is killed when ctx
// ends, so helpers spawned by the tool (ffmpeg) do not outlive the call.
type ExecCommandRunner struct{}

func (r *ExecCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	configureProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
