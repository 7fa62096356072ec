package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/conneroisu/roaster/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCommand returns a bare command carrying the flags of source, so the
// run functions can be called without going through rootCmd.
func testCommand(t *testing.T, source *cobra.Command) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(source.Flags())
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	return cmd, &out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	cmd, out := testCommand(t, initCmd)

	initExample, initForce, initAssetsDir, initPort = true, false, "public/javascripts", 9000
	require.NoError(t, runInit(cmd, []string{dir}))

	assert.FileExists(t, filepath.Join(dir, ".roaster.yml"))
	assert.FileExists(t, filepath.Join(dir, "public", "javascripts", "application.coffee"))
	assert.Contains(t, out.String(), "roaster serve")

	err := runInit(cmd, []string{dir})
	require.Error(t, err, "existing configuration is kept")
}

func TestCompileCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.coffee")
	bad := filepath.Join(dir, "bad.coffee")
	writeFile(t, good, "square = (x) -> x * x\n")
	writeFile(t, bad, "a = 1\nb = (\n")

	t.Run("prints javascript", func(t *testing.T) {
		cmd, out := testCommand(t, compileCmd)
		require.NoError(t, runCompile(cmd, []string{good}))
		assert.Contains(t, out.String(), "square = function(x) {")
		assert.Contains(t, out.String(), "return x * x;")
	})

	t.Run("reports the failing line", func(t *testing.T) {
		cmd, out := testCommand(t, compileCmd)
		err := runCompile(cmd, []string{bad})
		require.Error(t, err)

		var enhanced *errors.EnhancedError
		require.ErrorAs(t, err, &enhanced)
		assert.Contains(t, err.Error(), bad+":2:")
		assert.Contains(t, err.Error(), "Check the reported line")
		assert.Empty(t, out.String())
	})

	t.Run("missing file", func(t *testing.T) {
		cmd, _ := testCommand(t, compileCmd)
		err := runCompile(cmd, []string{filepath.Join(dir, "nope.coffee")})
		require.Error(t, err)
		assert.True(t, errors.HasErrorCode(err, "ERR_CLI"))
	})
}

func TestPrecompileAndCleanCommands(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "public", "javascripts", "a.coffee"), "a = 1\n")
	writeFile(t, filepath.Join(dir, "public", "javascripts", "bad.coffee"), "a = (\n")
	artifact := filepath.Join(dir, "precompiled", "assets", "coffeescripts", "public", "javascripts", "a.coffee.js")

	cmd, out := testCommand(t, precompileCmd)
	viper.Set("assets.root", dir)
	require.NoError(t, runPrecompile(cmd, nil))
	assert.Contains(t, out.String(), "Precompiled 1 sources")
	assert.Contains(t, out.String(), "failed: public/javascripts/bad.coffee")
	assert.FileExists(t, artifact)
	assert.FileExists(t, filepath.Join(dir, "precompiled", "assets", "coffeescripts", "manifest.yml"))

	strict, _ := testCommand(t, precompileCmd)
	viper.Set("assets.root", dir)
	require.NoError(t, strict.Flags().Set("strict", "true"))
	err := runPrecompile(strict, nil)
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, "ERR_PRECOMPILE_FAILURES"))

	clean, _ := testCommand(t, cleanCmd)
	viper.Set("assets.root", dir)
	require.NoError(t, clean.Flags().Set("precompiled", "true"))
	require.NoError(t, runClean(clean, nil))
	assert.NoFileExists(t, artifact)
}

func TestPrecompileCommandMinifiesInAnyMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script test doubles require a POSIX shell")
	}
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "public", "javascripts", "a.coffee"), "a = 1\n")
	exe := filepath.Join(t.TempDir(), "uglifyjs")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\ntr a-z A-Z\n"), 0o755))

	cmd, _ := testCommand(t, precompileCmd)
	viper.Set("assets.root", dir)
	viper.Set("mode", "dev")
	viper.Set("uglifyjs.path", exe)
	require.NoError(t, runPrecompile(cmd, nil))

	data, err := os.ReadFile(filepath.Join(dir, "precompiled", "assets", "coffeescripts", "public", "javascripts", "a.coffee.js"))
	require.NoError(t, err)
	js := string(data)
	assert.NotEmpty(t, js)
	assert.Equal(t, strings.ToUpper(js), js, "precompiled output goes through the minifier")
}

func TestLoadConfigSuggestions(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("mode", "staging")

	_, err := loadConfig()
	require.Error(t, err)
	var enhanced *errors.EnhancedError
	require.ErrorAs(t, err, &enhanced)
	assert.Contains(t, err.Error(), "Use a supported mode")
}

func TestVersionCommand(t *testing.T) {
	t.Cleanup(func() { versionFormat, versionShort = "text", false })

	cmd, out := testCommand(t, versionCmd)
	versionFormat = "json"
	require.NoError(t, runVersionCommand(cmd, nil))

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "is_release")

	versionFormat = "xml"
	assert.Error(t, runVersionCommand(cmd, nil))
}

func TestFlagNameNormalization(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.SetNormalizeFunc(normalizeFlagName)
	flags.String("log-level", "info", "")

	require.NoError(t, flags.Parse([]string{"--log_level=debug"}))
	value, err := flags.GetString("log-level")
	require.NoError(t, err)
	assert.Equal(t, "debug", value)
}
