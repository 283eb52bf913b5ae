package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/bridge"
	"github.com/sells-group/formpilot/internal/bridge/httpapi"
	"github.com/sells-group/formpilot/internal/browser"
	"github.com/sells-group/formpilot/internal/engine"
)

var (
	serveAddr    string
	serveBrowser bool
	serveOpen    []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the extension bridge over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var pages engine.Pages
		if serveBrowser {
			b, err := browser.Open(ctx, cfg.Browser)
			if err != nil {
				return err
			}
			defer b.Close() //nolint:errcheck
			for _, u := range serveOpen {
				tab, err := b.NewTab(ctx, u)
				if err != nil {
					return err
				}
				zap.L().Info("serve: opened tab", zap.Int("tab_id", tab), zap.String("url", u))
			}
			pages = b
		} else if len(serveOpen) > 0 {
			return eris.New("--open requires --browser")
		}

		env, err := initEnv(ctx, pages)
		if err != nil {
			return err
		}
		defer env.Close()

		router := bridge.NewRouter()
		bridge.Register(router, env.Engine)
		ch := bridge.NewChannel(router, bridge.ChannelOptions{
			Timeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		})
		defer ch.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := httpapi.New(ch, httpapi.Options{Addr: addr, AllowedOrigins: cfg.Server.AllowedOrigins})

		zap.L().Info("bridge server starting",
			zap.String("addr", addr),
			zap.Strings("actions", router.Actions()),
			zap.Bool("browser", serveBrowser),
		)
		if err := srv.Run(ctx); err != nil {
			return eris.Wrap(err, "serve")
		}
		zap.L().Info("bridge server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveBrowser, "browser", false, "drive a rod-controlled Chrome as the page source")
	serveCmd.Flags().StringSliceVar(&serveOpen, "open", nil, "urls to open as tabs at startup (requires --browser)")
	rootCmd.AddCommand(serveCmd)
}
