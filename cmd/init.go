package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/conneroisu/roaster/internal/services"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Write a configuration file and the asset directory",
	Long: `Write .roaster.yml with the default settings and create the asset
directory. If no directory is given, initializes the current directory.

Examples:
  roaster init                          # Initialize the current directory
  roaster init site --example           # Include an example source
  roaster init --assets-dir assets/js   # Use a different asset directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initExample   bool
	initForce     bool
	initAssetsDir string
	initPort      int
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initExample, "example", false, "Create an example .coffee source")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	initCmd.Flags().StringVar(&initAssetsDir, "assets-dir", "public/javascripts", "Directory holding .coffee sources")
	initCmd.Flags().IntVar(&initPort, "port", 9000, "Port written to the configuration")
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) > 0 {
		projectDir = args[0]
	}

	err := services.NewInitService(afero.NewOsFs()).InitProject(services.InitOptions{
		ProjectDir: projectDir,
		AssetsDir:  initAssetsDir,
		Port:       initPort,
		Example:    initExample,
		Force:      initForce,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", filepath.Join(projectDir, services.ConfigFileName))
	fmt.Fprintf(out, "Put .coffee sources in %s and run: roaster serve\n",
		filepath.Join(projectDir, filepath.FromSlash(initAssetsDir)))
	return nil
}
