package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rs/zerolog"

	"solana-copy-bot/internal/ipc"
)

// Process is a running worker and its message channel.
type Process interface {
	// Send writes a message to the worker. Safe for concurrent use.
	Send(msg ipc.Message) error
	// Messages yields worker messages; it is closed when the worker's output ends.
	Messages() <-chan ipc.Message
	// Wait blocks until the worker exits and returns its exit code.
	Wait() (int, error)
	// Kill terminates the worker.
	Kill() error
	PID() int
}

// Launcher starts isolated workers.
type Launcher interface {
	Launch(ctx context.Context, botID string) (Process, error)
}

// ExecLauncher runs each worker as a child process. The child's stdin and
// stdout carry the protocol; stderr is inherited for logs.
type ExecLauncher struct {
	Path   string
	Args   []string
	Env    []string
	Logger zerolog.Logger
}

// Launch starts the worker binary for botID.
func (l *ExecLauncher) Launch(_ context.Context, botID string) (Process, error) {
	args := append(append([]string(nil), l.Args...), "-bot-id", botID)
	cmd := exec.Command(l.Path, args...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", l.Path, err)
	}

	p := &execProcess{
		cmd:   cmd,
		stdin: stdin,
		enc:   ipc.NewEncoder(stdin),
		msgs:  make(chan ipc.Message, 64),
	}
	go p.read(stdout, l.Logger.With().Str("bot_id", botID).Logger())
	return p, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *ipc.Encoder
	msgs  chan ipc.Message
}

func (p *execProcess) read(r io.Reader, logger zerolog.Logger) {
	defer close(p.msgs)

	dec := ipc.NewDecoder(r)
	for {
		msg, err := dec.Decode()
		if errors.Is(err, ipc.ErrMalformedFrame) {
			logger.Warn().Err(err).Msg("dropping worker frame")
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn().Err(err).Msg("worker output failed")
			}
			return
		}
		p.msgs <- msg
	}
}

func (p *execProcess) Send(msg ipc.Message) error { return p.enc.Encode(msg) }

func (p *execProcess) Messages() <-chan ipc.Message { return p.msgs }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	p.stdin.Close()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return p.cmd.ProcessState.ExitCode(), nil
}

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) PID() int { return p.cmd.Process.Pid }
