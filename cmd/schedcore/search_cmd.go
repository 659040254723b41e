package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schedcu/core/internal/config"
	"github.com/schedcu/core/internal/kv"
	"github.com/schedcu/core/internal/search"
)

var (
	searchTypes  []string
	searchFacets []string
	searchPage   int
	searchSize   int
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Faceted search over people, rotations, and assignments",
	Long: `Search matches free text against the dataset and returns hits with
facet counts. Facet selections use facet=value pairs; repeat --facet to
combine them (AND across facets, OR within one).

Examples:
  schedcore search smith --data schedule.json
  schedcore search --data schedule.json --facet person_type=resident --facet pgy_level=PGY-2
  schedcore search clinic --data schedule.json --type rotation --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := newStore(ctx)
		if err != nil {
			return err
		}

		opts := search.DefaultOptions()
		opts.CacheTTL = config.GetDuration("search.cache-ttl")
		opts.MaxFacetValues = config.GetInt("search.max-facet-values")
		opts.DynamicOrdering = config.GetBool("search.dynamic-ordering")
		svc := search.NewService(search.NewStorageSource(store), kv.NewMemory(), log, opts)

		q := search.Query{Page: searchPage, PageSize: searchSize}
		if len(args) == 1 {
			q.Text = args[0]
		}
		for _, t := range searchTypes {
			q.EntityTypes = append(q.EntityTypes, search.EntityType(t))
		}
		selections := map[string][]string{}
		for _, f := range searchFacets {
			key, value, ok := strings.Cut(f, "=")
			if !ok {
				return fmt.Errorf("facet %q is not facet=value", f)
			}
			selections[key] = append(selections[key], value)
		}
		for key, values := range selections {
			q.Selections = append(q.Selections, search.Selection{Facet: key, Values: values})
		}

		results, err := svc.Search(ctx, q)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(results)
		}
		fmt.Printf("%d results\n", results.Total)
		for _, hit := range results.Hits {
			fmt.Printf("  [%s] %s\n", hit.Type, hit.Label)
		}
		for _, facet := range results.Facets {
			fmt.Printf("%s:\n", facet.Name)
			for _, fv := range facet.Values {
				fmt.Printf("  %s (%d)\n", fv.Value, fv.Count)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchTypes, "type", nil, "restrict to entity types")
	searchCmd.Flags().StringSliceVar(&searchFacets, "facet", nil, "facet selection, facet=value")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "page number")
	searchCmd.Flags().IntVar(&searchSize, "page-size", 0, "results per page (0 = default)")
	rootCmd.AddCommand(searchCmd)
}
