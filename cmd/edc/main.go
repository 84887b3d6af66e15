// Command edc is the short-lived launcher: it connects to the edad
// daemon (spawning it if absent), asks it to open a file, and optionally
// blocks until the user closes the editor window before exiting. It is
// the program meant to be set as $VISUAL.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/edad/internal/config"
	"github.com/ehrlich-b/edad/internal/transport"
)

// Exit codes per spec §6.2.
const (
	exitOK           = 0
	exitUsage        = 2
	exitConnectOrRPC = 3
	exitTimeout      = 4
)

func main() {
	os.Exit(mainE())
}

func mainE() int {
	var (
		path      string
		line      int
		column    int
		wait      bool
		timeoutMs int
		noSocket  bool
		stdioMode bool
	)

	root := &cobra.Command{
		Use:   "edc",
		Short: "edc — connect to the edad daemon and open a file for editing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return usageError{msg: "--path is required"}
			}
			return runOpen(path, line, column, wait, timeoutMs, noSocket, stdioMode)
		},
	}
	root.Flags().StringVar(&path, "path", "", "file to open (required)")
	root.Flags().IntVar(&line, "line", 0, "line number to place the cursor on")
	root.Flags().IntVar(&column, "column", 0, "column number to place the cursor on")
	root.Flags().BoolVar(&wait, "wait", false, "block until the editor window closes")
	root.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "abort with a timeout exit code after this many milliseconds")
	root.Flags().BoolVar(&noSocket, "no-socket", false, "run an in-process daemon instead of connecting over the socket")
	root.Flags().BoolVar(&stdioMode, "stdio", false, "use stdin/stdout as the transport to a co-launched daemon")

	root.AddCommand(statusCmd(), doctorCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "edc:", err)
		switch e := err.(type) {
		case usageError:
			return exitUsage
		case exitErr:
			return e.code
		default:
			return exitConnectOrRPC
		}
	}
	return exitOK
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func runOpen(path string, line, column int, wait bool, timeoutMs int, noSocket, stdioMode bool) error {
	appDir, err := config.AppSupportDir()
	if err != nil {
		return err
	}
	mgr := config.NewManager()
	cwd, _ := os.Getwd()
	if err := mgr.Load(config.ConfigPath(appDir), cwd); err != nil {
		return err
	}
	cfg := mgr.Get()
	if cfg.SocketPath == "" {
		cfg.SocketPath = config.SocketPath(appDir)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return exitErr{code: exitUsage, err: err}
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if timeoutMs > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	var client rpcCaller
	switch {
	case noSocket:
		lc, err := newLocalClient()
		if err != nil {
			return exitErr{code: exitConnectOrRPC, err: fmt.Errorf("start in-process daemon: %w", err)}
		}
		client = lc
	case stdioMode:
		sc, err := newStdioClient()
		if err != nil {
			return exitErr{code: exitConnectOrRPC, err: fmt.Errorf("launch stdio daemon: %w", err)}
		}
		client = sc
	default:
		conn, err := connectOrSpawn(ctx, cfg.SocketPath)
		if err != nil {
			return exitErr{code: exitConnectOrRPC, err: err}
		}
		client = transport.NewClient(conn)
	}
	defer client.Close()

	var hello map[string]any
	if err := client.Call(ctx, "hello", map[string]any{
		"client":          "edc",
		"protocolVersion": cfg.ProtocolVersion,
	}, &hello); err != nil {
		return exitErr{code: exitConnectOrRPC, err: fmt.Errorf("hello: %w", err)}
	}

	var openResult struct {
		SessionID string `json:"sessionId"`
		Path      string `json:"path"`
		Content   string `json:"content"`
		Revision  string `json:"revision"`
		IsDirty   bool   `json:"isDirty"`
	}
	if err := client.Call(ctx, "session.open", map[string]any{
		"path":            absPath,
		"line":            line,
		"column":          column,
		"protocolVersion": cfg.ProtocolVersion,
	}, &openResult); err != nil {
		return exitErr{code: exitConnectOrRPC, err: fmt.Errorf("session.open: %w", err)}
	}

	fmt.Printf("opened session %s for %s\n", openResult.SessionID, openResult.Path)

	if !wait {
		return nil
	}

	var waitResult struct {
		Reason string `json:"reason"`
	}
	if err := client.Call(ctx, "session.wait", map[string]any{
		"sessionId": openResult.SessionID,
		"timeoutMs": timeoutMs,
	}, &waitResult); err != nil {
		if ctx.Err() != nil {
			return exitErr{code: exitTimeout, err: ctx.Err()}
		}
		return exitErr{code: exitConnectOrRPC, err: err}
	}
	if waitResult.Reason == "timeout" {
		return exitErr{code: exitTimeout, err: fmt.Errorf("timed out waiting for session to close")}
	}
	restoreTerminalFocus(cfg.TerminalBundleIDAllowlist)
	return nil
}

// connectOrSpawn dials the daemon's socket; if that first dial fails it
// spawns the daemon and retries the dial with bounded backoff.
func connectOrSpawn(ctx context.Context, socketPath string) (net.Conn, error) {
	conn, err := transport.Dial(ctx, socketPath)
	if err == nil {
		return conn, nil
	}

	if spawnErr := spawnDaemon(); spawnErr != nil {
		return nil, fmt.Errorf("spawn daemon: %w", spawnErr)
	}

	op := func() (net.Conn, error) {
		c, err := transport.Dial(ctx, socketPath)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(10),
	)
}

func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	daemonExe := filepath.Join(filepath.Dir(exe), "edad")
	if _, err := os.Stat(daemonExe); err != nil {
		daemonExe = "edad"
	}
	cmd := exec.Command(daemonExe)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Start()
}

type exitErr struct {
	code int
	err  error
}

func (e exitErr) Error() string { return e.err.Error() }
