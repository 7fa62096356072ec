package cmd

import (
	"fmt"

	"github.com/conneroisu/roaster/internal/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve compiled assets",
	Long: `Serve CoffeeScript sources as JavaScript. Requests for .coffee files below
the asset directory are compiled on demand and cached; everything else is
served as a static file.

In dev mode changed sources are recompiled as they are saved and connected
browsers reload through /_roaster/livereload. In prod mode every source is
precompiled before the server starts listening.

Examples:
  roaster serve                         # Serve on localhost:9000
  roaster serve --mode prod --port 8080 # Precompile, then serve
  roaster serve --precompiled           # Reuse artifacts from roaster precompile`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 9000, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("precompiled", false, "Reuse precompiled artifacts instead of compiling")
	serveCmd.Flags().Bool("no-live-reload", false, "Disable live reload in dev mode")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("precompiled", serveCmd.Flags().Lookup("precompiled"))
}

func runServe(cmd *cobra.Command, args []string) error {
	noLiveReload, _ := cmd.Flags().GetBool("no-live-reload")

	rt, err := newRuntime(cmd, nil)
	if err != nil {
		return err
	}
	if noLiveReload {
		rt.Config.Development.LiveReload = false
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting roaster (%s) at http://%s\n", rt.Config.Mode, rt.Config.Address())

	result, err := services.NewServeService(rt).Serve(cmd.Context(), services.ServeOptions{
		HandleSignals: true,
	})
	if err != nil {
		return err
	}

	if result.Precompile != nil && result.Precompile.Failed > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d sources failed to precompile\n", result.Precompile.Failed)
	}
	return nil
}
