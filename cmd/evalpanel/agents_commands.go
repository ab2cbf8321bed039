package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"evalpanel/internal/agents"
)

func newAgentsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect and import evaluation agents",
	}
	cmd.AddCommand(newAgentsListCommand(ctx))
	cmd.AddCommand(newAgentsShowCommand(ctx))
	cmd.AddCommand(newAgentsImportCommand(ctx))
	cmd.AddCommand(newAgentsToggleCommand(ctx, "enable", true))
	cmd.AddCommand(newAgentsToggleCommand(ctx, "disable", false))
	return cmd
}

func newAgentsListCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive agents")
	cmd.RunE = ctx.runWithApp(func(c context.Context, cmd *cobra.Command, a *app) error {
		list, err := a.registry.List(c, agents.Filter{ActiveOnly: !all, IncludeCoordinator: true})
		if err != nil {
			return err
		}
		if ctx.jsonOutput() {
			return writeJSON(cmd, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No agents registered")
			return nil
		}
		rows := make([][]string, 0, len(list))
		for _, agent := range list {
			role := "module"
			if agent.IsCoordinator {
				role = "coordinator"
			}
			rows = append(rows, []string{agent.Key, agent.Name, role, yesNo(agent.Active), yesNo(agent.IsTemplate)})
		}
		fmt.Fprint(cmd.OutOrStdout(), renderTable(
			[]column{left("Key"), clipped("Name", 40), left("Role"), left("Active"), left("Template")},
			rows,
		))
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
	return cmd
}

func newAgentsShowCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Show an agent's prompt and rules",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withApp(func(a *app) error {
			agent, err := a.registry.GetByKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, agent)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%s)\n", agent.Icon, agent.Name, agent.Key)
			fmt.Fprintf(out, "Coordinator: %s\nActive: %s\n", yesNo(agent.IsCoordinator), yesNo(agent.Active))
			if agent.Description != "" {
				fmt.Fprintf(out, "Description: %s\n", agent.Description)
			}
			fmt.Fprintf(out, "\nSystem prompt:\n%s\n", agent.SystemPrompt)
			if agent.BusinessRules != "" {
				fmt.Fprintf(out, "\nBusiness rules:\n%s\n", agent.BusinessRules)
			}
			if agent.OutputSchema != "" {
				fmt.Fprintf(out, "\nOutput schema:\n%s\n", agent.OutputSchema)
			}
			return nil
		})
	}
	return cmd
}

func newAgentsImportCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create or update agents from a YAML document",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open agent file: %w", err)
		}
		defer file.Close()
		return ctx.withApp(func(a *app) error {
			result, err := a.registry.ImportYAML(cmd.Context(), file)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported agents: %d created, %d updated\n", len(result.Created), len(result.Updated))
			return nil
		})
	}
	return cmd
}

func newAgentsToggleCommand(ctx *commandContext, use string, active bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <key>",
		Short: fmt.Sprintf("%s an agent", map[bool]string{true: "Activate", false: "Deactivate"}[active]),
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withApp(func(a *app) error {
			agent, err := a.registry.GetByKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.registry.SetActive(cmd.Context(), agent.ID, active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent %s active: %s\n", agent.Key, yesNo(active))
			return nil
		})
	}
	return cmd
}
