package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE users (id integer);\n"), 0644))

	src := NewSource(path)
	defer src.Close()

	dump, err := src.DumpSchema()
	require.NoError(t, err)
	assert.Equal(t, dump, "CREATE TABLE users (id integer);\n")
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.sql"))
	assert.Error(t, err)
}
