package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/storedir/internal/discovery"
	"github.com/sells-group/storedir/internal/model"
)

var neighborhoodsCmd = &cobra.Command{
	Use:   "neighborhoods",
	Short: "Inspect neighborhood search progress",
}

// -- neighborhoods list --

var neighborhoodsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List neighborhoods with their next result ceiling",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initBase(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		country, _ := cmd.Flags().GetString("country")
		state, _ := cmd.Flags().GetString("state")
		city, _ := cmd.Flags().GetString("city")
		cityID, _ := cmd.Flags().GetInt64("city-id")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := env.Directory.ListNeighborhoods(ctx, discovery.NeighborhoodFilter{
			Country: country,
			State:   state,
			City:    city,
			CityID:  cityID,
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "neighborhoods list")
		}

		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No neighborhoods found.")
			return nil
		}

		formatNeighborhoods(os.Stdout, list)
		return nil
	},
}

// -- neighborhoods states --

var neighborhoodsStatesCmd = &cobra.Command{
	Use:   "states",
	Short: "Summarize search progress per state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initBase(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		country, _ := cmd.Flags().GetString("country")
		states, err := env.Directory.ListStates(ctx, country)
		if err != nil {
			return eris.Wrap(err, "neighborhoods states")
		}

		formatStates(os.Stdout, states)
		return nil
	},
}

func init() {
	neighborhoodsListCmd.Flags().String("country", "", "country name or code")
	neighborhoodsListCmd.Flags().String("state", "", "state name or code")
	neighborhoodsListCmd.Flags().String("city", "", "city name")
	neighborhoodsListCmd.Flags().Int64("city-id", 0, "city id")
	neighborhoodsListCmd.Flags().Int("limit", 100, "max number of neighborhoods to display")

	neighborhoodsStatesCmd.Flags().String("country", "", "country name or code")

	neighborhoodsCmd.AddCommand(neighborhoodsListCmd)
	neighborhoodsCmd.AddCommand(neighborhoodsStatesCmd)
	rootCmd.AddCommand(neighborhoodsCmd)
}

func formatNeighborhoods(out io.Writer, list []model.Neighborhood) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCITY\tSTATE\tSEARCHES\tNEXT_LIMIT")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t-----\t--------\t----------")
	for _, n := range list {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
			n.ID, n.Name, n.CityName, n.StateName, n.ApurationCount, discovery.NextLimit(n.ApurationCount))
	}
	_ = w.Flush()
}

func formatStates(out io.Writer, states []model.StateSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATE\tCOUNTRY\tNEIGHBORHOODS\tPENDING\tMIN_SEARCHES\tNEXT_LIMIT")
	_, _ = fmt.Fprintln(w, "-----\t-------\t-------------\t-------\t------------\t----------")
	for _, s := range states {
		name := s.Name
		if s.Code != "" {
			name = s.Code
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
			name, s.CountryCode, s.Neighborhoods, s.PendingNeighborhoods, s.MinApurationCount, discovery.NextLimit(s.MinApurationCount))
	}
	_ = w.Flush()
}
