package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/intellifactory/internal/pipeline"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run advisor agents against the factory",
	}

	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentRunCmd())
	cmd.AddCommand(newAgentRunAllCmd())
	return cmd
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available agents",
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tNAME\tACTIONS")
			for _, a := range pipeline.Agents {
				actions := make([]string, len(a.Allowed))
				for i, t := range a.Allowed {
					actions[i] = string(t)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", a.Slug, a.Name, strings.Join(actions, ", "))
			}
			w.Flush()
		},
	}
}

func newAgentRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run <agent>",
		Short: "Run one agent and apply its actions",
		Long:  "Runs one agent (by slug or name) against the current factory state, applies its actions and prints the result as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd, configPath)
			if err != nil {
				return err
			}
			res, err := a.orch.RunAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newAgentRunAllCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run every agent once and apply their actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd, configPath)
			if err != nil {
				return err
			}
			res, err := a.orch.RunAll(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
