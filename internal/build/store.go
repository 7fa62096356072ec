package build

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/roaster/internal/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// TmpDir holds artifacts compiled on demand.
	TmpDir = "tmp"
	// PrecompiledDir holds artifacts produced ahead of deployment.
	PrecompiledDir = "precompiled"

	artifactSubdir = "assets/coffeescripts"
	artifactExt    = ".js"
	manifestName   = "manifest.yml"
)

// Artifact is the compiled output for one source. SourceModTime is the
// modification time of the source the text was compiled from.
type Artifact struct {
	SourcePath    string
	SourceModTime time.Time
	Text          string
}

// ArtifactStore persists compiled output in a directory tree mirroring the
// sources. The mtime of each artifact file records the source mtime it was
// compiled from, so staleness survives restarts.
type ArtifactStore struct {
	fs   afero.Fs
	root string
}

// NewArtifactStore creates a store on fs under tmp/ or precompiled/.
func NewArtifactStore(fs afero.Fs, precompiled bool) *ArtifactStore {
	base := TmpDir
	if precompiled {
		base = PrecompiledDir
	}
	return &ArtifactStore{
		fs:   fs,
		root: filepath.Join(base, filepath.FromSlash(artifactSubdir)),
	}
}

// Root returns the store directory relative to the filesystem root.
func (s *ArtifactStore) Root() string {
	return s.root
}

// Path returns where the artifact for sourcePath is stored.
func (s *ArtifactStore) Path(sourcePath string) string {
	return filepath.Join(s.root, filepath.FromSlash(sourcePath)) + artifactExt
}

// Lookup returns the stored artifact for sourcePath, or nil when absent.
func (s *ArtifactStore) Lookup(sourcePath string) (*Artifact, error) {
	f, err := s.fs.Open(s.Path(sourcePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIOError(errors.ErrCodeArtifactRead, "cannot open artifact", err).
			WithLocation(sourcePath, 0)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeArtifactRead, "cannot stat artifact", err).
			WithLocation(sourcePath, 0)
	}
	text, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeArtifactRead, "cannot read artifact", err).
			WithLocation(sourcePath, 0)
	}

	return &Artifact{
		SourcePath:    sourcePath,
		SourceModTime: info.ModTime(),
		Text:          string(text),
	}, nil
}

// IsStale reports whether a must be recompiled for a source modified at
// sourceModTime. A missing artifact is stale.
func (s *ArtifactStore) IsStale(a *Artifact, sourceModTime time.Time) bool {
	return a == nil || a.SourceModTime.Before(sourceModTime)
}

// Put stores a atomically: readers see either the previous artifact or the
// complete new one.
func (s *ArtifactStore) Put(a *Artifact) error {
	dst := s.Path(a.SourcePath)
	dir := filepath.Dir(dst)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return s.writeError("cannot create artifact directory", a, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return s.writeError("cannot create temporary artifact", a, err)
	}
	tmpName := tmp.Name()

	if _, err := io.WriteString(tmp, a.Text); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return s.writeError("cannot write artifact", a, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return s.writeError("cannot write artifact", a, err)
	}
	if err := s.fs.Chtimes(tmpName, a.SourceModTime, a.SourceModTime); err != nil {
		_ = s.fs.Remove(tmpName)
		return s.writeError("cannot stamp artifact", a, err)
	}
	if err := s.fs.Rename(tmpName, dst); err != nil {
		_ = s.fs.Remove(tmpName)
		return s.writeError("cannot move artifact into place", a, err)
	}
	return nil
}

func (s *ArtifactStore) writeError(msg string, a *Artifact, err error) error {
	return errors.NewIOError(errors.ErrCodeArtifactWrite, msg, err).
		WithLocation(a.SourcePath, 0)
}

// Remove deletes the artifact for sourcePath if present.
func (s *ArtifactStore) Remove(sourcePath string) error {
	err := s.fs.Remove(s.Path(sourcePath))
	if err != nil && !os.IsNotExist(err) {
		return errors.NewIOError(errors.ErrCodeArtifactWrite, "cannot remove artifact", err).
			WithLocation(sourcePath, 0)
	}
	return nil
}

// Purge deletes every stored artifact.
func (s *ArtifactStore) Purge() error {
	if err := s.fs.RemoveAll(s.root); err != nil {
		return errors.NewIOError(errors.ErrCodePurgeFailed, "cannot purge compiled assets", err).
			WithContext("dir", s.root)
	}
	return nil
}

// Walk calls fn for every stored artifact with the source path it was
// compiled from.
func (s *ArtifactStore) Walk(fn func(sourcePath string, info os.FileInfo) error) error {
	err := afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if info.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, artifactExt) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(strings.TrimSuffix(rel, artifactExt)), info)
	})
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Manifest lists the artifacts written by a precompilation run.
type Manifest struct {
	GeneratedAt time.Time       `yaml:"generated_at"`
	Backend     string          `yaml:"backend"`
	Assets      []ManifestEntry `yaml:"assets"`
}

// ManifestEntry describes one precompiled artifact.
type ManifestEntry struct {
	Path    string    `yaml:"path"`
	ModTime time.Time `yaml:"mtime"`
	Digest  string    `yaml:"digest"`
}

// WriteManifest stores m next to the artifacts.
func (s *ArtifactStore) WriteManifest(m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "cannot encode manifest", err)
	}
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return errors.NewIOError(errors.ErrCodeArtifactWrite, "cannot create store directory", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(s.root, manifestName), data, 0o644); err != nil {
		return errors.NewIOError(errors.ErrCodeArtifactWrite, "cannot write manifest", err)
	}
	return nil
}

// ReadManifest loads the manifest of the last precompilation, or nil when
// there is none.
func (s *ArtifactStore) ReadManifest() (*Manifest, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.root, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIOError(errors.ErrCodeArtifactRead, "cannot read manifest", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.NewIOError(errors.ErrCodeArtifactRead, "cannot decode manifest", err)
	}
	return &m, nil
}
