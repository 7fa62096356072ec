package build

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/roaster/internal/errors"
	"github.com/spf13/afero"
)

// SourceExt is the extension of files the pipeline compiles.
const SourceExt = ".coffee"

// Source is a CoffeeScript file read from the application tree.
type Source struct {
	// Path is slash-separated and relative to the application root.
	Path string
	// AbsPath is the OS path handed to external tools.
	AbsPath string
	ModTime time.Time
	Content string
}

// SourceTree reads sources relative to an application root.
type SourceTree struct {
	fs   afero.Fs
	root string
}

// NewSourceTree creates a source tree over fs. root is the OS directory fs
// is based at and is only used to build AbsPath.
func NewSourceTree(fs afero.Fs, root string) *SourceTree {
	return &SourceTree{fs: fs, root: root}
}

// Fs returns the filesystem the tree reads from.
func (t *SourceTree) Fs() afero.Fs {
	return t.fs
}

// Root returns the OS directory of the tree.
func (t *SourceTree) Root() string {
	return t.root
}

// Clean normalizes a request-relative path and rejects any path that
// would leave the tree.
func Clean(rel string) (string, error) {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	if rel == "" {
		return "", errors.ErrInvalidPath(rel)
	}
	for _, segment := range strings.Split(rel, "/") {
		if segment == ".." {
			return "", errors.ErrPathTraversal(rel)
		}
	}
	return path.Clean(rel), nil
}

// Load reads the source at rel. Missing files produce an error for which
// errors.IsNotExist reports true.
func (t *SourceTree) Load(rel string) (*Source, error) {
	clean, err := Clean(rel)
	if err != nil {
		return nil, err
	}
	name := filepath.FromSlash(clean)

	info, err := t.fs.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError(errors.ErrCodeSourceNotFound, "source not found", err).
				WithLocation(clean, 0)
		}
		return nil, errors.NewIOError(errors.ErrCodeSourceRead, "cannot stat source", err).
			WithLocation(clean, 0)
	}
	if info.IsDir() {
		return nil, errors.ErrInvalidPath(clean)
	}

	content, err := afero.ReadFile(t.fs, name)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeSourceRead, "cannot read source", err).
			WithLocation(clean, 0)
	}

	return &Source{
		Path:    clean,
		AbsPath: filepath.Join(t.root, name),
		ModTime: info.ModTime(),
		Content: string(content),
	}, nil
}

// Walk calls fn with the slash-separated path of every source file below
// dir, in lexical order.
func (t *SourceTree) Walk(dir string, fn func(rel string) error) error {
	clean, err := Clean(dir)
	if err != nil {
		return err
	}

	return afero.Walk(t.fs, filepath.FromSlash(clean), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), SourceExt) {
			return nil
		}
		return fn(filepath.ToSlash(p))
	})
}
