package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ema-chat",
	Short: "Streaming chat with tool use over any supported model backend",
	Long: `ema-chat runs conversation turns against a streaming model backend,
executes the tools the model asks for and paces the response for display.
It can be used interactively from the terminal or served to websocket clients.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "ema-chat.yaml", "path to the YAML configuration file")

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newToolsCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
