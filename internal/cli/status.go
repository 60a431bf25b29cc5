package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/desk"
	"github.com/soyeahso/livechat/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check agent presence and show a configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "livechat %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			if _, statErr := os.Stat(paths.Config); os.IsNotExist(statErr) {
				fmt.Fprintln(out, "Config:  not found (using defaults)")
			}

			client := api.New(cfg.API, api.WithLogger(log))
			fmt.Fprintf(out, "API:     %s (timeout %s)\n", client.BaseURL(), cfg.API.Timeout())
			fmt.Fprintf(out, "Widget:  poll=%s presence=%s store=%s sound=%s\n",
				cfg.Widget.PollInterval(), cfg.Widget.PresenceInterval(),
				cfg.Widget.SessionStore, cfg.Widget.Sound.Player)
			fmt.Fprintf(out, "Desk:    listen=%s auth=%s db=%s\n",
				desk.ListenAddr(cfg.Desk), cfg.Desk.Auth.Mode, paths.DataFile(cfg.Desk.Database))
			if irc := cfg.Desk.IRC; irc != nil {
				fmt.Fprintf(out, "IRC:     server=%s nick=%s channel=%s tls=%v\n",
					irc.Server, irc.Nick, irc.Channel, irc.UseTLS)
			} else {
				fmt.Fprintln(out, "IRC:     (not configured)")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			online, err := client.Presence(ctx)
			switch {
			case err != nil:
				fmt.Fprintf(out, "Agents:  offline (%s)\n", api.KindOf(err))
			case online:
				fmt.Fprintln(out, "Agents:  online")
			default:
				fmt.Fprintln(out, "Agents:  offline")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "presence check timeout")
	return cmd
}
