package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"paperqa/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		chat, closer, err := newChat(ctx, cfg, logger, sessionID)
		if err != nil {
			return err
		}
		defer closer.Close()

		m := tui.New(ctx, chat)
		_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	},
}

func init() {
	chatCmd.Flags().StringVar(&sessionID, "session", "", "Keep the transcript in the transcript store under this id")
}
