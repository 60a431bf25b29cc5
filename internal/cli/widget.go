package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/hooks"
	"github.com/soyeahso/livechat/internal/logging"
	"github.com/soyeahso/livechat/internal/metrics"
	"github.com/soyeahso/livechat/internal/sound"
	"github.com/soyeahso/livechat/internal/store"
	"github.com/soyeahso/livechat/internal/tui"
	"github.com/soyeahso/livechat/internal/widget"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWidgetCmd() *cobra.Command {
	var (
		apiURL      string
		resume      bool
		noSound     bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Open the chat widget in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(func(cfg *config.Config) {
				if apiURL != "" {
					cfg.API.BaseURL = strings.TrimSuffix(apiURL, "/")
				}
				if resume {
					cfg.Widget.SessionStore = "sqlite"
				}
			})
			if err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating livechat directories: %w", err)
			}

			// The terminal belongs to the widget; logs go to a file.
			logPath := cfg.Logging.File
			if logPath == "" {
				logPath = filepath.Join(paths.Logs, "widget.log")
			}
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("opening widget log: %w", err)
			}
			defer logFile.Close()
			wlog := logging.New(logFile, levelFor(cfg))

			hookMgr := hooks.NewManager(wlog)
			if err := hooks.RegisterCommands(hookMgr, cfg.Hooks); err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			opts := []widget.Option{
				widget.WithLogger(wlog),
				widget.WithNotifier(sound.FromConfig(cfg.Widget.Sound, noSound, wlog.Sub("sound"))),
				widget.WithHooks(hookMgr),
				widget.WithRecorder(metrics.NewWidget(reg)),
			}

			switch cfg.Widget.SessionStore {
			case "sqlite":
				dbPath := paths.DataFile("widget.db")
				db, err := store.Open(dbPath, wlog)
				if err != nil {
					return fmt.Errorf("opening widget database: %w", err)
				}
				defer db.Close()
				opts = append(opts, widget.WithSessionStore(store.NewIdentityStore(db)))
				wlog.Info().Str("path", dbPath).Msg("using SQLite identity store")
			default:
				opts = append(opts, widget.WithSessionStore(widget.NewMemoryStore()))
			}

			client := api.New(cfg.API, api.WithLogger(wlog))
			ctrl := widget.New(client, cfg.Widget, opts...)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := ctrl.Start(ctx); err != nil {
				return err
			}
			defer ctrl.Stop()

			g, gctx := errgroup.WithContext(ctx)
			uiCtx, uiDone := context.WithCancel(gctx)
			g.Go(func() error {
				defer uiDone()
				return tui.Run(uiCtx, ctrl)
			})
			if metricsAddr != "" {
				g.Go(func() error {
					return serveMetrics(uiCtx, metricsAddr, reg, wlog)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "", "override the chat API base URL")
	cmd.Flags().BoolVar(&resume, "resume", false, "persist the visitor identity in SQLite and resume it on restart")
	cmd.Flags().BoolVar(&noSound, "no-sound", false, "disable the new-message cue")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve widget metrics on this address (e.g. 127.0.0.1:9465)")

	return cmd
}

// serveMetrics exposes reg until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving widget metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
