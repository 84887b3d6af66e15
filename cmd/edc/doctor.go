package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/edad/internal/cliout"
	"github.com/ehrlich-b/edad/internal/config"
	"github.com/ehrlich-b/edad/internal/transport"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check daemon reachability, config, and environment hints",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			fmt.Println("edc doctor")
			fmt.Println()

			fmt.Println("daemon:")
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			var daemonRows [][2]string
			if conn, err := transport.Dial(ctx, cfg.SocketPath); err != nil {
				daemonRows = append(daemonRows, [2]string{"edad", "not reachable: " + err.Error()})
			} else {
				conn.Close()
				daemonRows = append(daemonRows, [2]string{"edad", "reachable at " + cfg.SocketPath})
			}
			cliout.KeyValueTable(os.Stdout, daemonRows)
			fmt.Println()

			fmt.Println("environment:")
			var envRows [][2]string
			for _, ev := range wellKnownTerminalEnvVars {
				val := os.Getenv(ev)
				switch {
				case val == "":
					envRows = append(envRows, [2]string{ev, "not set"})
				case cfg.TerminalBundleIDAllowlist != "" && !terminalBundleIDAllowed(val, cfg.TerminalBundleIDAllowlist):
					envRows = append(envRows, [2]string{ev, fmt.Sprintf("%q (rejected: does not match allowlist)", val)})
				default:
					envRows = append(envRows, [2]string{ev, fmt.Sprintf("%q", val)})
				}
			}
			cliout.KeyValueTable(os.Stdout, envRows)
			fmt.Println()

			fmt.Println("config:")
			cliout.KeyValueTable(os.Stdout, [][2]string{
				{"app dir", appDir},
				{"socket", cfg.SocketPath},
				{"autosave debounce", cfg.AutosaveDebounce().String()},
				{"autosave max flush", cfg.AutosaveMaxFlush().String()},
				{"protocol version", fmt.Sprintf("%d (min accepted %d)", cfg.ProtocolVersion, cfg.MinProtocolVersion)},
				{"agent command", cfg.AgentCommand},
			})

			return nil
		},
	}
}

// wellKnownTerminalEnvVars lists the terminal-identifying environment hints
// doctor reports. Only EDAD_TERMINAL_BUNDLE_ID is used to refocus the
// terminal after a session closes (see restoreTerminalFocus).
var wellKnownTerminalEnvVars = []string{
	"EDAD_TERMINAL_BUNDLE_ID",
	"ITERM_SESSION_ID",
	"TERM_PROGRAM",
}
