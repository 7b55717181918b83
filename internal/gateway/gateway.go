// Package gateway launches a local OpenAI-compatible proxy (LiteLLM) for the
// gateway judge provider when no base URL is configured.
package gateway

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/signalnine/triage/internal/secrets"
	"go.uber.org/zap"
)

const DefaultBinary = "litellm"

type Options struct {
	// Binary defaults to DefaultBinary on PATH.
	Binary string
	// Config is an optional LiteLLM model config file.
	Config         string
	SecretsEnvFile string
	LogDir         string
	StartTimeout   time.Duration
	Logger         *zap.Logger
}

// Gateway is a running proxy process.
type Gateway struct {
	Port    int
	cmd     *exec.Cmd
	logFile *os.File
	logger  *zap.Logger
}

// FindFreePort asks the kernel for an unused TCP port.
func FindFreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// URL is the base URL judges send chat completions to.
func (g *Gateway) URL() string {
	return "http://localhost:" + strconv.Itoa(g.Port)
}

// Start launches the proxy and waits until it accepts connections. The
// process is killed when ctx is done or Stop is called.
func Start(ctx context.Context, opts Options) (*Gateway, error) {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LogDir == "" {
		opts.LogDir = os.TempDir()
	}

	port, err := FindFreePort()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating gateway log dir: %w", err)
	}
	logPath := filepath.Join(opts.LogDir, fmt.Sprintf("litellm-%d.log", port))
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("creating gateway log: %w", err)
	}

	args := []string{"--port", strconv.Itoa(port)}
	if opts.Config != "" {
		args = append(args, "--config", opts.Config)
	}
	cmd := exec.CommandContext(ctx, opts.Binary, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	if opts.SecretsEnvFile != "" {
		vars, err := secrets.Parse(opts.SecretsEnvFile)
		if err != nil {
			logFile.Close()
			return nil, err
		}
		cmd.Env = append(cmd.Env, secrets.Environ(vars)...)
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("starting %s: %w", opts.Binary, err)
	}
	g := &Gateway{Port: port, cmd: cmd, logFile: logFile, logger: opts.Logger}
	if err := waitForPort(ctx, port, opts.StartTimeout); err != nil {
		g.Stop()
		return nil, fmt.Errorf("%s did not start (log: %s): %w", opts.Binary, logPath, err)
	}
	opts.Logger.Info("judge gateway started", zap.String("url", g.URL()), zap.String("log", logPath))
	return g, nil
}

func (g *Gateway) Stop() error {
	if g.cmd != nil && g.cmd.Process != nil {
		_ = g.cmd.Process.Kill()
		_ = g.cmd.Wait()
		g.logger.Debug("judge gateway stopped", zap.Int("port", g.Port))
	}
	if g.logFile != nil {
		return g.logFile.Close()
	}
	return nil
}

func waitForPort(ctx context.Context, port int, timeout time.Duration) error {
	addr := net.JoinHostPort("localhost", strconv.Itoa(port))
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
	return fmt.Errorf("port %d not ready after %s", port, timeout)
}
