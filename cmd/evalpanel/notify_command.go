package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"evalpanel/internal/notifications"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}
	notifyCmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification to the configured Slack webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Notifications.SlackWebhookURL == "" {
				fmt.Fprintln(out, "Notifications disabled: notifications.slack_webhook_url is not set")
				return nil
			}
			host, _ := os.Hostname()
			err = notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, notifications.Payload{
				"host": host,
				"at":   time.Now().Format(time.RFC3339),
			})
			if err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	})
	return notifyCmd
}
