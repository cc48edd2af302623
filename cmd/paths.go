package cmd

import (
	"fmt"
	"sort"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/waypointlabs/waypoint/internal/observability"
	"github.com/waypointlabs/waypoint/internal/pathmemory"
)

// newPathsCmd creates the `paths` command, which inspects the learned
// path-memory document without opening a browser session.
func newPathsCmd() *cobra.Command {
	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "Lists the learned navigation paths and known-failed sequences",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config: %w", err)
			}

			memPath, err := cfg.MemoryFilePath()
			if err != nil {
				return err
			}
			memory, err := pathmemory.New(pathmemory.NewFileStore(memPath), observability.GetLogger())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			learned := memory.Learned()
			format, _ := cmd.Flags().GetString("format")
			if format == "json" {
				enc, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(learned, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(enc))
				return nil
			}

			if len(learned) == 0 {
				fmt.Fprintln(out, "no learned paths")
				return nil
			}
			keys := make([]string, 0, len(learned))
			for k := range learned {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				p := learned[k]
				fmt.Fprintf(out, "%s  (%d successes, last %s)\n    %s\n",
					k, p.Successes, p.LastSuccess, p.HumanReadable)
			}
			for k, seqs := range memory.Failed() {
				fmt.Fprintf(out, "%s  %d known-failed sequence(s)\n", k, len(seqs))
			}
			return nil
		},
	}
	pathsCmd.Flags().String("format", "text", "output format: text or json")
	return pathsCmd
}
