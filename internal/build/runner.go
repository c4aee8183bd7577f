package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/qobs-build/rbuild/internal/msg"
	"golang.org/x/sync/errgroup"
)

// Command is a subprocess invocation.
type Command struct {
	Name string
	Args []string
	Dir  string   // working directory, "" for the current one
	Env  []string // KEY=VALUE pairs added to the inherited environment
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs subprocesses and returns what they printed.
//
//go:generate go run go.uber.org/mock/mockgen -source=runner.go -destination=mocks/runner.go -package=mocks
type Runner interface {
	Run(ctx context.Context, cmd Command) (stdout, stderr string, err error)
}

// ExecRunner runs commands with os/exec. With Verbose set, output is also
// streamed to msg.Output while it is captured.
type ExecRunner struct {
	Verbose bool
}

func (r ExecRunner) Run(ctx context.Context, cmd Command) (string, string, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	stdoutPipe, err := c.StdoutPipe()
	if err != nil {
		return "", "", err
	}
	stderrPipe, err := c.StderrPipe()
	if err != nil {
		return "", "", err
	}

	if r.Verbose {
		msg.Step("Running", "%s", cmd)
	}
	if err := c.Start(); err != nil {
		return "", "", err
	}

	var stdout, stderr bytes.Buffer
	var console io.Writer
	if r.Verbose {
		console = &lockedWriter{w: msg.Output}
	}

	// both pipes have to be drained before Wait
	var eg errgroup.Group
	eg.Go(func() error { return drain(&stdout, stdoutPipe, console) })
	eg.Go(func() error { return drain(&stderr, stderrPipe, console) })
	copyErr := eg.Wait()

	if err := c.Wait(); err != nil {
		return stdout.String(), stderr.String(), err
	}
	return stdout.String(), stderr.String(), copyErr
}

func drain(buf *bytes.Buffer, r io.Reader, console io.Writer) error {
	var w io.Writer = buf
	if console != nil {
		w = io.MultiWriter(buf, &msg.IndentWriter{Indent: "    ", W: console})
	}
	_, err := io.Copy(w, r)
	return err
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

// RunCommand runs cmd and turns a failure into a *StepError carrying detail
// and the captured output.
func RunCommand(ctx context.Context, r Runner, cmd Command, detail string) (stdout, stderr string, err error) {
	stdout, stderr, err = r.Run(ctx, cmd)
	if err == nil {
		return stdout, stderr, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		if stderr == "" && stdout == "" {
			stderr = fmt.Sprintf("%s exited with status %d\n", cmd.Name, exitErr.ExitCode())
		}
	case stdout == "" && stderr == "":
		// never started (missing binary, bad working directory)
		stderr = "IOError: " + err.Error()
	}
	return stdout, stderr, &StepError{Detail: detail, Stdout: stdout, Stderr: stderr, Err: err}
}
