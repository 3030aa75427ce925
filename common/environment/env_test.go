package environment_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/nutritrackr/common/environment"
)

func TestLoad_DoesNotOverrideExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("NT_TEST_A=from-file\nNT_TEST_B=file-only\n"), 0o600))

	t.Setenv("NT_TEST_A", "from-env")
	t.Setenv("NT_TEST_B", "")
	os.Unsetenv("NT_TEST_B")
	t.Cleanup(func() { os.Unsetenv("NT_TEST_B") })

	require.NoError(t, environment.Load(path))
	assert.Equal(t, "from-env", os.Getenv("NT_TEST_A"))
	assert.Equal(t, "file-only", os.Getenv("NT_TEST_B"))
}

func TestLoad_MissingFileIsSkipped(t *testing.T) {
	err := environment.Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestFirst(t *testing.T) {
	t.Setenv("NT_FIRST_A", "")
	t.Setenv("NT_FIRST_B", "second")
	assert.Equal(t, "second", environment.First("NT_FIRST_A", "NT_FIRST_B"))
	assert.Equal(t, "", environment.First("NT_FIRST_MISSING"))
}

func TestRequiredString(t *testing.T) {
	t.Setenv("NT_REQUIRED", "value")
	v, err := environment.RequiredString("NT_REQUIRED")
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	_, err = environment.RequiredString("NT_REQUIRED_MISSING")
	assert.Error(t, err)
}

func TestTypedHelpers(t *testing.T) {
	t.Setenv("NT_BOOL", "true")
	t.Setenv("NT_INT", " 42 ")
	t.Setenv("NT_BAD_INT", "x")
	t.Setenv("NT_DUR", "90s")
	t.Setenv("NT_SLICE", " a, ,b ")

	assert.True(t, environment.BoolOr("NT_BOOL", false))
	assert.True(t, environment.BoolOr("NT_BOOL_MISSING", true))
	assert.Equal(t, 42, environment.IntOr("NT_INT", 0))
	assert.Equal(t, 7, environment.IntOr("NT_BAD_INT", 7))
	assert.Equal(t, 90*time.Second, environment.DurationOr("NT_DUR", time.Second))
	assert.Equal(t, time.Minute, environment.DurationOr("NT_DUR_MISSING", time.Minute))
	assert.Equal(t, []string{"a", "b"}, environment.StringSliceOr("NT_SLICE", nil))
	assert.Equal(t, []string{"x"}, environment.StringSliceOr("NT_SLICE_MISSING", []string{"x"}))
}
