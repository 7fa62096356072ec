package cmd

import (
	"fmt"
	"time"

	"github.com/conneroisu/roaster/internal/config"
	"github.com/conneroisu/roaster/internal/services"
	"github.com/spf13/cobra"
)

var precompileCmd = &cobra.Command{
	Use:     "precompile",
	Aliases: []string{"p"},
	Short:   "Compile every source ahead of deployment",
	Long: `Compile every .coffee file below the asset directory into the
precompiled/ tree and write its manifest. Failed sources are reported and
skipped; pass --strict to exit non-zero when any source fails.

Sources are always compiled as in production, whatever the configured mode,
so artifacts are minified when uglifyjs.path is set. Start the server with
--precompiled --mode prod to serve the result without compiling.

Examples:
  roaster precompile
  roaster precompile --strict -j 8`,
	RunE: runPrecompile,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove compiled artifacts",
	Long: `Remove the compiled artifact tree. Use --precompiled to remove the
output of roaster precompile instead of the on-demand cache.`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(precompileCmd)
	rootCmd.AddCommand(cleanCmd)

	precompileCmd.Flags().Bool("strict", false, "Fail when any source does not compile")
	precompileCmd.Flags().Bool("keep", false, "Keep existing artifacts instead of purging first")
	precompileCmd.Flags().IntP("workers", "j", 0, "Parallel compilations (default: build.workers)")

	cleanCmd.Flags().Bool("precompiled", false, "Remove precompiled artifacts")
}

func runPrecompile(cmd *cobra.Command, args []string) error {
	strict, _ := cmd.Flags().GetBool("strict")
	keep, _ := cmd.Flags().GetBool("keep")
	workers, _ := cmd.Flags().GetInt("workers")

	rt, err := newRuntime(cmd, func(cfg *config.Config) {
		cfg.Mode = config.ModeProd
		cfg.Precompile = true
		cfg.Precompiled = false
		if workers > 0 {
			cfg.Build.Workers = workers
		}
	})
	if err != nil {
		return err
	}

	result, err := services.NewPrecompileService(rt).Precompile(cmd.Context(), services.PrecompileOptions{
		Clean:  !keep,
		Strict: strict,
	})
	if result != nil && result.Report != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Precompiled %d sources into %s in %s\n",
			result.Report.Compiled, result.Dir, result.Duration.Round(time.Millisecond))
		for _, failure := range result.Report.Failures {
			fmt.Fprintf(out, "  failed: %s: %v\n", failure.Path, failure.Err)
		}
	}
	return err
}

func runClean(cmd *cobra.Command, args []string) error {
	precompiled, _ := cmd.Flags().GetBool("precompiled")

	rt, err := newRuntime(cmd, func(cfg *config.Config) {
		cfg.Precompiled = precompiled
		cfg.Precompile = false
	})
	if err != nil {
		return err
	}

	if err := services.NewPrecompileService(rt).Clean(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", rt.Store.Root())
	return nil
}
