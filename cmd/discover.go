package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/storedir/internal/discovery"
	"github.com/sells-group/storedir/internal/keywords"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run store discovery",
	Long:  "Searches the places provider zone by zone, ingests new stores and records an audit row per invocation.",
}

// -- discover run --

var discoverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a global or filtered discovery pass",
	RunE: func(cmd *cobra.Command, _ []string) error {
		req, err := runRequestFromFlags(cmd)
		if err != nil {
			return err
		}
		return runDiscovery(cmd, req)
	},
}

// -- discover neighborhoods --

var discoverNeighborhoodsCmd = &cobra.Command{
	Use:   "neighborhoods",
	Short: "Run a scoped pass over specific neighborhoods",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ids, _ := cmd.Flags().GetInt64Slice("ids")
		if len(ids) == 0 {
			return eris.New("discover neighborhoods: --ids is required")
		}
		names, _ := cmd.Flags().GetStringSlice("categories")
		cats, invalid := keywords.ParseCategories(names)
		if len(invalid) > 0 {
			return eris.Errorf("discover neighborhoods: unknown categories %v", invalid)
		}
		return runDiscovery(cmd, discovery.RunRequest{NeighborhoodIDs: ids, Categories: cats})
	},
}

func runRequestFromFlags(cmd *cobra.Command) (discovery.RunRequest, error) {
	country, _ := cmd.Flags().GetString("country")
	state, _ := cmd.Flags().GetString("state")
	city, _ := cmd.Flags().GetString("city")
	maxResults, _ := cmd.Flags().GetInt("max-results")
	maxZones, _ := cmd.Flags().GetInt("max-zones")
	legacy, _ := cmd.Flags().GetBool("legacy-zones")
	names, _ := cmd.Flags().GetStringSlice("categories")

	cats, invalid := keywords.ParseCategories(names)
	if len(invalid) > 0 {
		return discovery.RunRequest{}, eris.Errorf("discover run: unknown categories %v", invalid)
	}
	if maxResults < 0 || maxZones < 0 {
		return discovery.RunRequest{}, eris.New("discover run: --max-results and --max-zones must be >= 0")
	}

	return discovery.RunRequest{
		Country:        country,
		State:          state,
		City:           city,
		MaxResults:     maxResults,
		MaxZones:       maxZones,
		Categories:     cats,
		UseLegacyZones: legacy,
	}, nil
}

func runDiscovery(cmd *cobra.Command, req discovery.RunRequest) error {
	ctx := cmd.Context()

	env, err := initEnv(ctx, "discovery")
	if err != nil {
		return err
	}
	defer env.Close()

	resp, runErr := env.Runner.Run(ctx, req)
	if resp != nil {
		if err := writeJSONIndent(os.Stdout, resp); err != nil {
			return err
		}
	}
	if runErr != nil {
		return eris.Wrap(runErr, "discover")
	}
	return nil
}

func writeJSONIndent(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("country", "", "country name or code")
	cmd.Flags().String("state", "", "state name or code")
	cmd.Flags().String("city", "", "city name")
	cmd.Flags().Int("max-results", 0, "result cap for the run (default from config)")
	cmd.Flags().Int("max-zones", 0, "zone ceiling for the run (default from config)")
	cmd.Flags().Bool("legacy-zones", false, "search the built-in zone table instead of neighborhoods")
	cmd.Flags().StringSlice("categories", nil, "categories to search (paint, lumber, plumbing, hardware, general)")
}

func init() {
	addRunFlags(discoverRunCmd)

	discoverNeighborhoodsCmd.Flags().Int64Slice("ids", nil, "neighborhood ids to search")
	discoverNeighborhoodsCmd.Flags().StringSlice("categories", nil, "categories to search (paint, lumber, plumbing, hardware, general)")

	discoverCmd.AddCommand(discoverRunCmd)
	discoverCmd.AddCommand(discoverNeighborhoodsCmd)
	rootCmd.AddCommand(discoverCmd)
}
