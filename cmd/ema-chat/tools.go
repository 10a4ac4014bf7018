package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/koscakluka/ema-chat/internal/config"
)

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools and the tools of configured MCP servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			registry, err := newRegistry(cmd.Context(), cfg.Tools)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTools(out, registry.Schemas())
			if sources := registry.Sources(); len(sources) > 0 {
				fmt.Fprintf(out, "\nmcp servers: %s\n", strings.Join(sources, ", "))
			}
			return nil
		},
	}
}

func printTools(out io.Writer, schemas []llms.ToolSchema) {
	for _, schema := range schemas {
		fmt.Fprintln(out, schema.Name)
		if schema.Description != "" {
			fmt.Fprintln(out, indent.String(wordwrap.String(schema.Description, 72), 4))
		}
	}
}
