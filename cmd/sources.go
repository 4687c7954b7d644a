package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/opendate-cli/internal/config"
	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/waterfall"
)

var sourcesPriority string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the priority order with tiers and configuration status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		order, err := priorityOrder(cfg, sourcesPriority)
		if err != nil {
			return err
		}
		return printSources(os.Stdout, cfg, order)
	},
}

func printSources(out io.Writer, c *config.Config, order []string) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSOURCE\tTIER\tSTATUS\tLOCATION")
	for i, name := range order {
		status, loc := sourceStatus(c, name)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, name, waterfall.TierOf(name), status, loc)
	}
	return w.Flush()
}

func sourceStatus(c *config.Config, name string) (status, location string) {
	switch {
	case name == model.SourceKnowledgeGraph:
		if !c.KnowledgeGraph.Enabled {
			return "disabled", c.KnowledgeGraph.Endpoint
		}
		return "ready", c.KnowledgeGraph.Endpoint
	case !model.KnownSource(name):
		return "unknown", "-"
	}
	sc := c.Sources.ByName(name)
	switch {
	case !sc.Enabled:
		return "disabled", sc.Path
	case sc.Path == "":
		return "not configured", "-"
	case sc.Link != "":
		return "ready (" + sc.Link + " link)", sc.Path
	default:
		return "ready", sc.Path
	}
}

func init() {
	sourcesCmd.Flags().StringVar(&sourcesPriority, "priority", "", "comma-separated source priority order")
	rootCmd.AddCommand(sourcesCmd)
}
