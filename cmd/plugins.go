package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-integrations/app/plugin"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect the MCP plugin catalog",
}

var pluginsCatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate the plugin catalog and list its entries",
	Run: func(c *cobra.Command, _ []string) {
		cfg := mustLoadConfig()
		catalog, err := plugin.LoadCatalog(cfg.MCP.CatalogPath)
		if err != nil {
			logrus.WithError(err).WithField("path", cfg.MCP.CatalogPath).Fatal("Invalid plugin catalog")
		}

		w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tVERSION\tCATEGORY\tEXECUTOR\tFUNCTIONS")
		for _, entry := range catalog.Entries() {
			names := make([]string, 0, len(entry.Functions))
			for _, fn := range entry.Functions {
				names = append(names, fn.Name)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", entry.ID, entry.Version, entry.Category, entry.Executor, strings.Join(names, ","))
		}
		_ = w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
	pluginsCmd.AddCommand(pluginsCatalogCmd)
}
