package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/edad/internal/cliout"
	"github.com/ehrlich-b/edad/internal/config"
	"github.com/ehrlich-b/edad/internal/registry"
	"github.com/ehrlich-b/edad/internal/transport"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the edad daemon is reachable and its open sessions",
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

			fmt.Println("edc status")
			fmt.Println()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			rows := [][2]string{{"socket", cfg.SocketPath}}

			conn, err := transport.Dial(ctx, cfg.SocketPath)
			if err != nil {
				rows = append(rows, [2]string{"daemon", "not reachable: " + err.Error()})
				cliout.KeyValueTable(os.Stdout, rows)
				return nil
			}
			defer conn.Close()

			client := transport.NewClient(conn)
			var hello struct {
				ProtocolVersion int `json:"protocolVersion"`
				ServerPID       int `json:"serverPid"`
			}
			if err := client.Call(ctx, "hello", map[string]any{"client": "edc"}, &hello); err != nil {
				rows = append(rows, [2]string{"daemon", "reachable but hello failed: " + err.Error()})
				cliout.KeyValueTable(os.Stdout, rows)
				return nil
			}
			rows = append(rows,
				[2]string{"daemon", "reachable"},
				[2]string{"pid", strconv.Itoa(hello.ServerPID)},
				[2]string{"protocol version", strconv.Itoa(hello.ProtocolVersion)},
			)
			cliout.KeyValueTable(os.Stdout, rows)

			reg, err := registry.Open(config.RegistryPath(appDir))
			if err != nil {
				return nil
			}
			defer reg.Close()
			sessions, err := reg.OpenSessions()
			if err != nil || len(sessions) == 0 {
				return nil
			}

			fmt.Println()
			fmt.Println("open sessions:")
			var sessionRows [][]string
			for _, s := range sessions {
				sessionRows = append(sessionRows, []string{s.SessionID, s.FileURL, s.LastTouch.Format(time.RFC3339)})
			}
			cliout.Section(os.Stdout, []string{"session", "path", "last touch"}, sessionRows)
			return nil
		},
	}
}
