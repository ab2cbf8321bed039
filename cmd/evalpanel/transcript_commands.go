package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"evalpanel/internal/transcript"
)

func newTranscriptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect chat message exports",
	}
	cmd.AddCommand(newTranscriptRenderCommand())
	return cmd
}

func newTranscriptRenderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "render <messages.json>",
		Short: "Render a JSON message export as evaluation transcript text",
		Args:  cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := renderMessages(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

// renderMessages loads a message export from path ("-" reads stdin) and
// renders it with sender and media labels.
func renderMessages(cmd *cobra.Command, path string) (string, error) {
	var reader io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open messages: %w", err)
		}
		defer f.Close()
		reader = f
	}
	messages, err := transcript.Load(reader)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("message export is empty")
	}
	return transcript.Render(messages), nil
}
