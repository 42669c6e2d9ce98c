package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goPattern = `(?<path>[^:\s]+):(?<line>\d+):\s*(?<message>.*)$`

func validDefinition(t *testing.T) Definition {
	t.Helper()
	return Definition{
		ID:        "api",
		Name:      "API",
		Directory: t.TempDir(),
		Glob:      "**/*.go",
		Command:   "go test ./...",
		Pattern:   goPattern,
	}
}

func TestValidate(t *testing.T) {
	def := validDefinition(t)
	v := Validate(def)
	assert.True(t, v.OK())
	assert.Empty(t, v.Problems())

	bad := def
	bad.Directory = filepath.Join(def.Directory, "missing")
	bad.Glob = ""
	bad.Command = "   "
	bad.Pattern = "(unclosed"
	v = Validate(bad)
	assert.False(t, v.OK())
	assert.Equal(t, []string{"directory", "glob", "command", "pattern"}, v.Problems())
}

func TestValidateFileIsNotDirectory(t *testing.T) {
	def := validDefinition(t)
	file := filepath.Join(def.Directory, "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main\n"), 0o644))

	def.Directory = file
	assert.False(t, Validate(def).Directory)

	_, err := ResolveDirectory(file)
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestResolveDirectoryFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "target")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(target, link))

	got, err := ResolveDirectory(link)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestExpandAndAbbreviateHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandHome("~/src/app")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "src/app"), got)

	got, err = ExpandHome("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = ExpandHome("/abs/~/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/~/path", got)

	assert.Equal(t, "~/src/app", AbbreviateHome(filepath.Join(home, "src/app")))
	assert.Equal(t, "~", AbbreviateHome(home))
	assert.Equal(t, "/elsewhere", AbbreviateHome("/elsewhere"))
	assert.Equal(t, home+"x/y", AbbreviateHome(home+"x/y"))
}

func TestPresets(t *testing.T) {
	presets := []Preset{
		{ID: "build", Glob: "**/*.go", Command: "go build ./...", Pattern: goPattern},
		{ID: "test", Glob: "**/*.go", Command: "go test ./...", Pattern: goPattern},
	}

	def := Definition{ID: "w", Directory: "/tmp"}
	assert.True(t, def.EmptyPreset())

	filled := def.ApplyPreset(presets[1])
	assert.False(t, filled.EmptyPreset())
	assert.Equal(t, "go test ./...", filled.Command)
	assert.Equal(t, "test", filled.PresetID)
	assert.True(t, def.EmptyPreset(), "ApplyPreset must not mutate the receiver")

	p, ok := PresetFor(filled, presets)
	require.True(t, ok)
	assert.Equal(t, "test", p.ID)

	custom := filled
	custom.Command = "make check"
	_, ok = PresetFor(custom, presets)
	assert.False(t, ok)

	partial := Definition{Command: "make"}.ApplyPreset(presets[0])
	assert.Equal(t, "make", partial.Command)
	assert.Equal(t, "**/*.go", partial.Glob)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "API", Definition{ID: "api", Name: "API"}.Label())
	assert.Equal(t, "api", Definition{ID: "api"}.Label())
}

func TestDiff(t *testing.T) {
	prev := []Definition{
		{ID: "a", Name: "A", Command: "make"},
		{ID: "b", Name: "B", Command: "go test"},
	}
	next := []Definition{
		{ID: "b", Name: "B2", Command: "go test -race"},
		{ID: "c", Name: "C"},
	}

	got := Diff(prev, next)
	want := []Changed{
		{ID: "a", Op: OpRemoved},
		{ID: "b", Op: OpModified, Field: FieldName},
		{ID: "b", Op: OpModified, Field: FieldCommand},
		{ID: "c", Op: OpAdded},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"a", "b", "c"}, Touched(got))

	assert.Empty(t, Diff(next, next))
}
