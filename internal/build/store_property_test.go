//go:build property

package build

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/afero"
)

// TestArtifactStoreProperties checks that staleness follows source mtimes
// through a persisted round trip.
func TestArtifactStoreProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("stored artifact is stale only for newer sources", prop.ForAll(
		func(compiledAt, offset int64) bool {
			store := NewArtifactStore(afero.NewMemMapFs(), false)
			stamp := base.Add(time.Duration(compiledAt) * time.Second)

			if err := store.Put(&Artifact{SourcePath: "a.coffee", SourceModTime: stamp, Text: "x"}); err != nil {
				return false
			}
			a, err := store.Lookup("a.coffee")
			if err != nil || a == nil {
				return false
			}

			source := stamp.Add(time.Duration(offset) * time.Second)
			return store.IsStale(a, source) == (offset > 0)
		},
		gen.Int64Range(0, 1<<20),
		gen.Int64Range(-1000, 1000),
	))

	properties.Property("put then lookup returns the stored text", prop.ForAll(
		func(text string) bool {
			store := NewArtifactStore(afero.NewMemMapFs(), true)
			if err := store.Put(&Artifact{SourcePath: "dir/a.coffee", SourceModTime: base, Text: text}); err != nil {
				return false
			}
			a, err := store.Lookup("dir/a.coffee")
			return err == nil && a != nil && a.Text == text
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
