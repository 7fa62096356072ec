package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/conneroisu/roaster/internal/build"
	"github.com/conneroisu/roaster/internal/config"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var compileCmd = &cobra.Command{
	Use:     "compile <file.coffee>",
	Aliases: []string{"c"},
	Short:   "Print the compiled JavaScript of one source",
	Long: `Compile a single CoffeeScript file with the configured backend and print
the JavaScript to stdout. Nothing is written to the artifact store.

Examples:
  roaster compile public/javascripts/application.coffee
  roaster compile app.coffee --minify > app.min.js`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().Bool("minify", false, "Minify the output with uglifyjs.path")
}

func runCompile(cmd *cobra.Command, args []string) error {
	minify, _ := cmd.Flags().GetBool("minify")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(args[0])
	if err != nil {
		return errors.CLIError("compile", "cannot resolve source path", err)
	}
	dir := filepath.Dir(abs)
	tree := build.NewSourceTree(afero.NewBasePathFs(afero.NewOsFs(), dir), dir)

	src, err := tree.Load(filepath.Base(abs))
	if err != nil {
		return errors.CLIError("compile", fmt.Sprintf("cannot read %s", args[0]), err)
	}

	js, err := build.NewBackend(cfg, logger).Compile(cmd.Context(), src)
	if err != nil {
		if ce, ok := errors.AsCompileError(err); ok {
			ce.SourcePath = args[0]
			return errors.NewEnhancedError(ce.Error(), err, errors.CompileFailureSuggestions(ce))
		}
		return errors.CLIError("compile", "compilation failed", err)
	}

	if minify {
		prod := *cfg
		prod.Mode = config.ModeProd
		js = build.NewMinifier(&prod, logger).Minify(cmd.Context(), js)
	}

	_, err = fmt.Fprint(cmd.OutOrStdout(), js)
	return err
}
