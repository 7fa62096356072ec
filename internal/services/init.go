package services

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/conneroisu/roaster/internal/config"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the configuration file written by init and read by
// every command.
const ConfigFileName = ".roaster.yml"

const exampleSource = `# Compiled on request to /public/javascripts/application.js
greet = (name = "world") ->
  "Hello, #{name}!"

window.onload = ->
  document.title = greet "roaster"
`

// InitService handles project initialization business logic
type InitService struct {
	fs afero.Fs
}

// NewInitService creates a new initialization service writing to fs.
func NewInitService(fs afero.Fs) *InitService {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &InitService{fs: fs}
}

// InitOptions contains options for project initialization
type InitOptions struct {
	ProjectDir string
	AssetsDir  string
	Port       int
	Example    bool
	Force      bool
}

// configFile is the on-disk shape of .roaster.yml. Durations are written
// the way they are usually typed.
type configFile struct {
	Mode   string `yaml:"mode"`
	Server struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		CacheFor string `yaml:"cache_for"`
	} `yaml:"server"`
	Assets struct {
		Root      string `yaml:"root"`
		Dir       string `yaml:"dir"`
		URLPrefix string `yaml:"url_prefix"`
	} `yaml:"assets"`
	Coffee struct {
		Native  string `yaml:"native"`
		Timeout string `yaml:"timeout"`
	} `yaml:"coffee"`
	UglifyJS struct {
		Path    string `yaml:"path"`
		Timeout string `yaml:"timeout"`
	} `yaml:"uglifyjs"`
	Development struct {
		LiveReload bool `yaml:"live_reload"`
	} `yaml:"development"`
	LogLevel string `yaml:"log-level"`
}

// InitProject writes a configuration file and the asset directory layout.
func (s *InitService) InitProject(opts InitOptions) error {
	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}
	if opts.AssetsDir == "" {
		opts.AssetsDir = "public/javascripts"
	}
	if opts.Port == 0 {
		opts.Port = 9000
	}

	if err := s.fs.MkdirAll(opts.ProjectDir, 0o755); err != nil {
		return errors.InitError("VALIDATE_DIR", "project directory validation failed",
			errors.FileOperationError("CREATE_DIR", opts.ProjectDir, "cannot create project directory", err))
	}

	assetsPath := filepath.Join(opts.ProjectDir, filepath.FromSlash(opts.AssetsDir))
	if err := s.fs.MkdirAll(assetsPath, 0o755); err != nil {
		return errors.InitError("CREATE_DIRS", "asset directory creation failed",
			errors.FileOperationError("CREATE_DIR", assetsPath, "cannot create asset directory", err))
	}

	if err := s.createConfigFile(opts); err != nil {
		return errors.InitError("CREATE_CONFIG", "configuration file creation failed", err)
	}

	if opts.Example {
		examplePath := filepath.Join(assetsPath, "application.coffee")
		if err := s.writeFile(examplePath, []byte(exampleSource), opts.Force); err != nil {
			return errors.InitError("CREATE_EXAMPLE", "example source creation failed", err)
		}
	}

	return nil
}

func (s *InitService) createConfigFile(opts InitOptions) error {
	var doc configFile
	doc.Mode = config.ModeDev
	doc.Server.Host = "localhost"
	doc.Server.Port = opts.Port
	doc.Server.CacheFor = "1h"
	doc.Assets.Root = "."
	doc.Assets.Dir = opts.AssetsDir
	doc.Assets.URLPrefix = "/public/"
	doc.Coffee.Timeout = "30s"
	doc.UglifyJS.Timeout = "30s"
	doc.Development.LiveReload = true
	doc.LogLevel = "info"

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return s.writeFile(filepath.Join(opts.ProjectDir, ConfigFileName), data, opts.Force)
}

// writeFile refuses to replace an existing file unless force is set.
func (s *InitService) writeFile(path string, data []byte, force bool) error {
	if !force {
		exists, err := afero.Exists(s.fs, path)
		if err != nil {
			return errors.FileOperationError("STAT", path, "cannot check file", err)
		}
		if exists {
			return errors.FileOperationError("EXISTS", path,
				fmt.Sprintf("%s already exists, use --force to overwrite", path), os.ErrExist)
		}
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return errors.FileOperationError("WRITE", path, "cannot write file", err)
	}
	return nil
}
