package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/livechat/internal/channel"
	"github.com/soyeahso/livechat/internal/channel/irc"
	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/desk"
	"github.com/soyeahso/livechat/internal/hooks"
	"github.com/soyeahso/livechat/internal/store"
	"github.com/spf13/cobra"
)

func newDeskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "desk",
		Short: "Manage the agent desk server",
	}

	cmd.AddCommand(newDeskRunCmd())
	return cmd
}

func newDeskRunCmd() *cobra.Command {
	var (
		port        int
		bind        string
		forceOnline bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the desk server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(func(cfg *config.Config) {
				if port != 0 {
					cfg.Desk.Port = port
				}
				if bind != "" {
					cfg.Desk.Bind = bind
				}
				if forceOnline {
					cfg.Desk.ForceOnline = true
				}
			})
			if err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating livechat directories: %w", err)
			}

			dbPath := paths.DataFile(cfg.Desk.Database)
			db, err := store.Open(dbPath, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			log.Info().Str("path", dbPath).Msg("using SQLite chat store")

			hookMgr := hooks.NewManager(log)
			if err := hooks.RegisterCommands(hookMgr, cfg.Hooks); err != nil {
				return err
			}

			channels := channel.NewRegistry(log)
			if cfg.Desk.IRC != nil {
				channels.Register(irc.New(*cfg.Desk.IRC, log))
			}

			srv := desk.New(cfg.Desk, store.NewChatStore(db), log,
				desk.WithChannels(channels),
				desk.WithHooks(hookMgr),
				desk.WithEndpoints(cfg.API.Endpoints),
			)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override desk port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")
	cmd.Flags().BoolVar(&forceOnline, "force-online", false, "always report agents as online")

	return cmd
}
