package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/logbook/internal/store"
)

func newExportCmd(g *globals) *cobra.Command {
	var (
		catalog string
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "List snapshots recorded in the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("catalog") {
				cfg.Snapshot.Catalog = catalog
			}
			if cfg.Snapshot.Catalog == "" {
				return fmt.Errorf("no catalog configured; set --catalog or snapshot.catalog")
			}

			s, err := store.Open(cfg.Snapshot.Catalog)
			if err != nil {
				return err
			}
			defer s.Close()
			snaps, err := s.List(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snaps)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tTRIGGER\tOCCURRENCES\tDISTINCT\tPATH")
			for _, sn := range snaps {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
					sn.When.Local().Format(time.DateTime), sn.Trigger, sn.Occurrences, sn.Distinct, sn.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "", "snapshot catalog database path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum snapshots to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
