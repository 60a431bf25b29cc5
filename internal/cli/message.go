package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/spf13/cobra"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send and list messages of a chat session",
	}

	cmd.AddCommand(newMessageSendCmd())
	cmd.AddCommand(newMessageListCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		apiURL string
		name   string
		agent  bool
	)

	cmd := &cobra.Command{
		Use:   "send <session> <message>",
		Short: "Post a message into a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(apiURL)
			if err != nil {
				return err
			}

			sender := domain.SenderClient
			if agent {
				sender = domain.SenderAgent
			}
			req := api.SendMessageRequest{
				SessionID:      args[0],
				SenderType:     sender,
				SenderName:     name,
				MessageContent: strings.Join(args[1:], " "),
				MessageType:    domain.MessageText,
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := client.SendMessage(ctx, req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", req.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "", "override the chat API base URL")
	cmd.Flags().StringVar(&name, "name", "", "sender name")
	cmd.Flags().BoolVar(&agent, "agent", false, "send as an agent instead of the visitor")

	return cmd
}

func newMessageListCmd() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "list <session>",
		Short: "Print the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(apiURL)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			msgs, err := client.FetchMessages(ctx, args[0])
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), client, msgs)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "", "override the chat API base URL")
	return cmd
}

func newAPIClient(apiURL string) (*api.Client, error) {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if apiURL != "" {
			cfg.API.BaseURL = strings.TrimSuffix(apiURL, "/")
		}
	})
	if err != nil {
		return nil, err
	}
	return api.New(cfg.API, api.WithLogger(log)), nil
}

func printMessages(w io.Writer, client *api.Client, msgs []api.RemoteMessage) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "(no messages)")
		return
	}
	for _, m := range msgs {
		who := string(m.SenderType)
		if m.SenderName != "" {
			who = fmt.Sprintf("%s (%s)", m.SenderName, m.SenderType)
		}
		line := m.MessageContent
		if m.ImageURL != "" {
			line = strings.TrimSpace(fmt.Sprintf("%s [image %s]", line, client.ResolveURL(m.ImageURL)))
		}
		fmt.Fprintf(w, "%s: %s\n", who, line)
	}
}
