package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// stderrTailMax bounds the in-memory stderr capture per process.
const stderrTailMax = 4096

// tailBuffer keeps the last stderrTailMax bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - stderrTailMax; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// Process is one generation of the plugin runtime: the spawned command,
// its protocol pipes, a capped stderr capture and an exit watcher.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *tailBuffer

	done    chan struct{}
	exitErr error
}

// StartProcess spawns exe with args, wiring stdin/stdout as protocol pipes
// and capturing a stderr tail for crash diagnostics. extraEnv entries are
// appended to the inherited environment.
func StartProcess(log zerolog.Logger, exe string, args, extraEnv []string) (*Process, error) {
	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), extraEnv...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	tail := &tailBuffer{}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start runtime %s: %w", exe, err)
	}
	log.Info().Str("exe", exe).Int("pid", cmd.Process.Pid).Msg("runtime started")

	p := &Process{cmd: cmd, stdin: stdin, stdout: stdout, stderr: tail,
		done: make(chan struct{})}
	go func() {
		p.exitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Stdin is the runtime's request pipe.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout is the runtime's response pipe.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// PID returns the spawned process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Done is closed when the process exits; ExitErr is valid afterwards.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitErr returns the exit status. Only meaningful once Done is closed.
func (p *Process) ExitErr() error { return p.exitErr }

// StderrTail returns the captured tail of the runtime's stderr.
func (p *Process) StderrTail() string { return p.stderr.String() }

// Stop closes the request pipe, asks the process to terminate and kills it
// after grace. Safe to call on an already-exited process.
func (p *Process) Stop(grace time.Duration) {
	_ = p.stdin.Close()
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(grace):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}
