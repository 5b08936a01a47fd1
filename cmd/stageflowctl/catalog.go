package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cordum/stageflow/core/catalog"
	"github.com/spf13/cobra"
)

func (c *cli) catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and publish application catalogs",
	}
	jsonOut := false
	stages := &cobra.Command{
		Use:   "stages",
		Short: "List stage templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.application()
			if err != nil {
				return err
			}
			list, err := c.client().ListStages(cmd.Context(), app)
			if err != nil {
				return err
			}
			if jsonOut {
				return c.printJSON(list)
			}
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tSUB-STAGE\tTYPE\tNAME")
			for _, st := range list {
				fmt.Fprintf(w, "%s\t\t\t%s\n", st.ID, st.Name)
				for _, sub := range st.SubStages {
					fmt.Fprintf(w, "\t%s\t%s\t%s\n", sub.ID, sub.Type, sub.Name)
				}
			}
			return w.Flush()
		},
	}
	stages.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	attestations := &cobra.Command{
		Use:   "attestations",
		Short: "List attestation templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.application()
			if err != nil {
				return err
			}
			list, err := c.client().ListAttestations(cmd.Context(), app)
			if err != nil {
				return err
			}
			return c.printJSON(list)
		},
	}

	publish := &cobra.Command{
		Use:   "publish <file>",
		Short: "Publish every application in a catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalogs, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}
			cl := c.client()
			for id, cat := range catalogs {
				if err := cl.PublishCatalog(cmd.Context(), cat.Document()); err != nil {
					return fmt.Errorf("publish %s: %w", id, err)
				}
				fmt.Fprintf(os.Stderr, "published %s\n", id)
			}
			return nil
		},
	}

	cmd.AddCommand(stages, attestations, publish)
	return cmd
}
