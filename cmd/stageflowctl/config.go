package main

import (
	"fmt"
	"os"

	"github.com/cordum/stageflow/core/workflow"
	"github.com/spf13/cobra"
)

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage saved workflow configs",
	}

	validateOnly := false
	save := &cobra.Command{
		Use:   "save <file>",
		Short: "Validate and save a workflow config document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// #nosec G304 -- CLI explicitly reads local files provided by the operator.
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := workflow.DecodeConfig(raw); err != nil {
				return err
			}
			if validateOnly {
				_, err = fmt.Fprintln(c.out, "valid")
				return err
			}
			resp, err := c.client().SaveRawConfig(cmd.Context(), raw)
			if err != nil {
				return err
			}
			return c.printJSON(resp)
		},
	}
	save.Flags().BoolVar(&validateOnly, "validate-only", false, "validate locally without saving")

	get := &cobra.Command{
		Use:   "get <instance>",
		Short: "Fetch a saved workflow config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.application()
			if err != nil {
				return err
			}
			cfg, err := c.client().GetConfig(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			return c.printJSON(cfg)
		},
	}

	limit := 0
	list := &cobra.Command{
		Use:   "list",
		Short: "List recently saved workflow configs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := c.client().ListConfigs(cmd.Context(), c.v.GetString("app"), limit)
			if err != nil {
				return err
			}
			return c.printJSON(list)
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "maximum configs to return")

	history := &cobra.Command{
		Use:   "history <instance>",
		Short: "Show the save history of a workflow config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.application()
			if err != nil {
				return err
			}
			records, err := c.client().ConfigHistory(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			return c.printJSON(records)
		},
	}

	del := &cobra.Command{
		Use:   "delete <instance>",
		Short: "Delete a saved workflow config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.application()
			if err != nil {
				return err
			}
			return c.client().DeleteConfig(cmd.Context(), app, args[0])
		},
	}

	cmd.AddCommand(save, get, list, history, del)
	return cmd
}

func (c *cli) previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <location>",
		Short: "Preview an uploaded or downloadable file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.client().Preview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := c.printJSON(p); err != nil {
				return err
			}
			if p.Error != "" {
				return fmt.Errorf("preview failed: %s", p.Error)
			}
			return nil
		},
	}
}
