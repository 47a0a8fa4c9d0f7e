package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/beanvault/wallpaper-ai/internal/catalog"
)

var limitFlag int

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Query the wallpaper catalog",
}

var catalogCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List category counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(s catalog.Store) (interface{}, error) {
			return s.ListCounters(cmd.Context())
		})
	},
}

var catalogTopCmd = &cobra.Command{
	Use:   "top",
	Short: "List the most downloaded wallpapers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(s catalog.Store) (interface{}, error) {
			return s.TopDownloads(cmd.Context(), catalog.ClampLimit(limitFlag, catalog.DefaultTopLimit))
		})
	},
}

var catalogLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "List the newest wallpapers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(s catalog.Store) (interface{}, error) {
			return s.Latest(cmd.Context(), catalog.ClampLimit(limitFlag, catalog.DefaultLatestLimit))
		})
	},
}

func init() {
	catalogCmd.PersistentFlags().IntVarP(&limitFlag, "limit", "n", 0, "Maximum rows to print")
	catalogCmd.AddCommand(catalogCategoriesCmd, catalogTopCmd, catalogLatestCmd)
}

// withCatalog runs query against the configured catalog and prints the
// result as indented JSON.
func withCatalog(cmd *cobra.Command, query func(catalog.Store) (interface{}, error)) error {
	app, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := query(app.Catalog)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
