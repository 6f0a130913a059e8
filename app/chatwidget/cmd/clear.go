package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cchalm/chatwidget/internal/persist"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved transcript",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		store.Clear()
		fmt.Fprintln(cmd.OutOrStdout(), "Chat history cleared")
		return nil
	},
}

var themeCmd = &cobra.Command{
	Use:       "theme [light|dark]",
	Short:     "Show or set the saved theme",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(persist.ThemeLight), string(persist.ThemeDark)},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		if len(args) == 1 {
			theme, ok := persist.ParseTheme(args[0])
			if !ok {
				return fmt.Errorf("unknown theme '%s' (supported: light, dark)", args[0])
			}
			store.SetTheme(theme)
		}
		fmt.Fprintln(cmd.OutOrStdout(), store.Theme())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(themeCmd)
}
