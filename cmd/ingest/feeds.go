package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tickfeed/internal/core"
)

func newFeedsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "List registered feed layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs := core.All()

			if format == "json" {
				infos := make([]core.FeedInfo, len(defs))
				for i, def := range defs {
					infos[i] = def.Info
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tGROUP\tHEADER\tCOLUMNS")
			for _, def := range defs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
					def.Info.Key, def.Info.Group, def.HeaderLines, strings.Join(def.Info.Columns, ","))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "table", "output format (table or json)")
	return cmd
}
