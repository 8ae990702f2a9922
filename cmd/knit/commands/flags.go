package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/app"
	"go.trai.ch/knit/internal/core/domain"
)

// addBuildFlags registers the flags shared by build and watch.
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("mode", "m", "", "Build mode: development or production")
	cmd.Flags().String("dist-dir", "", "Output directory, relative to the project root")
	cmd.Flags().BoolP("no-cache", "n", false, "Build without reading or writing the cache")
	cmd.Flags().String("bundler", "", "Bundling policy: split or single")
	cmd.Flags().String("trace", "", "Write a Chrome trace of the build to this file")
	cmd.Flags().StringArray("feature-flag", nil, "Set a feature flag, as name=true|false")
	cmd.Flags().IntP("workers", "w", 0, "Number of workers")
}

// overrides collects the flag values set on cmd. Flags that are not
// registered on cmd are ignored.
func overrides(cmd *cobra.Command, entries []string) (app.Overrides, error) {
	ov := app.Overrides{Entries: entries}
	flags := cmd.Flags()
	ov.CacheDir, _ = flags.GetString("cache-dir")
	ov.Mode, _ = flags.GetString("mode")
	ov.DistDir, _ = flags.GetString("dist-dir")
	ov.NoCache, _ = flags.GetBool("no-cache")
	ov.Bundler, _ = flags.GetString("bundler")
	ov.TracePath, _ = flags.GetString("trace")
	ov.Workers, _ = flags.GetInt("workers")

	raw, _ := flags.GetStringArray("feature-flag")
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			value = "true"
		}
		on, err := strconv.ParseBool(value)
		if name == "" || err != nil {
			return app.Overrides{}, zerr.With(domain.ErrInvalidFeatureFlag, "flag", kv)
		}
		if ov.FeatureFlags == nil {
			ov.FeatureFlags = make(map[string]bool)
		}
		ov.FeatureFlags[name] = on
	}
	return ov, nil
}

func projectDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("dir")
	return dir
}
