package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codesearch/internal/httpapi"
	"github.com/Aman-CERP/codesearch/internal/mcp"
)

// Transports accepted by serve.
const (
	transportStdio = "stdio"
	transportHTTP  = "http"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		transport string
		addr      string
	)

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve index, search and status to tools",
		Long: `Expose index_codebase, search_code and index_status over MCP on stdio, or
the same operations as a JSON HTTP API.

Tool calls without a path act on the project serve was started in. Over stdio
nothing but protocol messages is written to stdout; logs go to the log file.`,
		Example: `  codesearch serve
  codesearch serve --transport http --addr 127.0.0.1:7777`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, root, err := a.openManager(arg(args))
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg := m.Config()
			if transport == "" {
				transport = cfg.Server.Transport
			}
			if addr == "" {
				addr = cfg.Server.HTTPAddr
			}

			switch transport {
			case transportStdio:
				srv, err := mcp.NewServer(m, root,
					mcp.WithLanguageFunc(m.Chunker().Language),
					mcp.WithProvider(cfg.Embeddings.Provider))
				if err != nil {
					return err
				}
				return srv.Serve(ctx)
			case transportHTTP:
				slog.Info("http_server_starting", slog.String("addr", addr), slog.String("root", root))
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s on http://%s\n", root, addr)
				return httpapi.NewServer(m, root).ListenAndServe(ctx, addr)
			default:
				return fmt.Errorf("unknown transport %q (want %s or %s)", transport, transportStdio, transportHTTP)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "stdio (MCP) or http (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address for the http transport (default from config)")
	return cmd
}
