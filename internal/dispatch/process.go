package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/leapstack-labs/qmdls/internal/config"
)

// processExitTimeout is how long a server gets to exit after its stdin
// closes before it is killed.
const processExitTimeout = 2 * time.Second

// LookPath resolves the executable of a server command.
func LookPath(server config.ServerConfig) (string, error) {
	if !server.Enabled() {
		return "", ErrNoServer
	}
	return exec.LookPath(server.Command[0])
}

// ProcessStarter returns a Starter that runs each server as a subprocess
// speaking LSP over stdio.
func ProcessStarter(rootURI string, logger *slog.Logger) Starter {
	return func(ctx context.Context, languageID string, server config.ServerConfig, onNotify NotifyFunc) (*Client, error) {
		path, err := LookPath(server)
		if err != nil {
			return nil, err
		}

		cmd := exec.Command(path, server.Command[1:]...)
		cmd.Env = os.Environ()
		for k, v := range server.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", path, err)
		}
		go logStderr(logger.With("language", languageID), stderr)

		proc := &process{cmd: cmd, stdin: stdin}
		client := NewClient(languageID, stdout, stdin, proc, onNotify, logger)
		if err := client.Initialize(ctx, rootURI, server.InitializationOptions); err != nil {
			_ = proc.Close()
			return nil, err
		}
		return client, nil
	}
}

type process struct {
	cmd   *exec.Cmd
	stdin io.Closer
}

// Close closes stdin and waits for the process, killing it if it lingers.
func (p *process) Close() error {
	_ = p.stdin.Close()

	exited := make(chan error, 1)
	go func() { exited <- p.cmd.Wait() }()

	select {
	case err := <-exited:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return err
	case <-time.After(processExitTimeout):
		_ = p.cmd.Process.Kill()
		<-exited
		return nil
	}
}

func logStderr(logger *slog.Logger, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("Language server stderr", "line", scanner.Text())
	}
}
