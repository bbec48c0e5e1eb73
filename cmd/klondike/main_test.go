package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/klondike/internal/testutil"
)

func newEnv(vars map[string]string) (*env, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &env{
		stdout: &stdout,
		stderr: &stderr,
		getenv: func(k string) string { return vars[k] },
	}, &stdout, &stderr
}

func TestCreateListExtract(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteFile(t, src, "a.txt", testutil.Text(4000))
	testutil.WriteFile(t, src, "sub/b.txt", []byte("bee"))
	archive := filepath.Join(t.TempDir(), "out.kld")

	e, stdout, stderr := newEnv(nil)
	require.Equal(t, 0, run(context.Background(), []string{"create", archive, src}, e), stderr.String())
	assert.Contains(t, stdout.String(), "2 entries")

	e, stdout, _ = newEnv(nil)
	require.Equal(t, 0, run(context.Background(), []string{"list", archive}, e))
	assert.Contains(t, stdout.String(), "sub/b.txt")

	e, stdout, _ = newEnv(nil)
	require.Equal(t, 0, run(context.Background(), []string{"info", archive}, e))
	assert.Contains(t, stdout.String(), "entries:   2")

	e, stdout, _ = newEnv(nil)
	require.Equal(t, 0, run(context.Background(), []string{"verify", archive}, e))
	assert.Contains(t, stdout.String(), "sha256:")

	dest := t.TempDir()
	e, _, _ = newEnv(nil)
	require.Equal(t, 0, run(context.Background(), []string{"extract", "-o", dest, archive}, e))
	got, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bee"), got)
}

func TestPasswd(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	path := testutil.WriteFile(t, src, "a.txt", []byte("secret"))
	archive := filepath.Join(t.TempDir(), "out.kld")

	e, _, _ := newEnv(nil)
	require.Equal(t, 0, run(context.Background(), []string{"create", archive, path}, e))

	e, _, _ = newEnv(map[string]string{envNewPassword: "pw"})
	require.Equal(t, 0, run(context.Background(), []string{"passwd", archive}, e))

	e, _, stderr := newEnv(nil)
	assert.Equal(t, 1, run(context.Background(), []string{"list", archive}, e))
	assert.Contains(t, stderr.String(), "password required")

	e, _, _ = newEnv(map[string]string{envPassword: "pw"})
	assert.Equal(t, 0, run(context.Background(), []string{"passwd", "-clear", archive}, e))

	e, _, _ = newEnv(nil)
	assert.Equal(t, 0, run(context.Background(), []string{"list", archive}, e))
}

func TestUsage(t *testing.T) {
	t.Parallel()

	tests := [][]string{
		nil,
		{"bogus"},
		{"create"},
		{"list"},
		{"extract"},
	}
	for _, args := range tests {
		e, _, stderr := newEnv(nil)
		assert.Equal(t, 2, run(context.Background(), args, e), "%v", args)
		assert.Contains(t, stderr.String(), "usage")
	}
}

func TestCreateEncryptsOnlyWithFlag(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	path := testutil.WriteFile(t, src, "a.txt", []byte("secret"))
	withPw := map[string]string{envPassword: "pw"}

	plain := filepath.Join(t.TempDir(), "plain.kld")
	e, _, stderr := newEnv(withPw)
	require.Equal(t, 0, run(context.Background(), []string{"create", plain, path}, e), stderr.String())

	e, stdout, stderr := newEnv(nil)
	require.Equal(t, 0, run(context.Background(), []string{"info", plain}, e), stderr.String())
	assert.Contains(t, stdout.String(), "encrypted: false")

	sealed := filepath.Join(t.TempDir(), "sealed.kld")
	e, _, stderr = newEnv(withPw)
	require.Equal(t, 0, run(context.Background(), []string{"create", "-encrypt", sealed, path}, e), stderr.String())

	e, _, stderr = newEnv(nil)
	assert.Equal(t, 1, run(context.Background(), []string{"list", sealed}, e))
	assert.Contains(t, stderr.String(), "password required")

	e, stdout, _ = newEnv(withPw)
	require.Equal(t, 0, run(context.Background(), []string{"info", sealed}, e))
	assert.Contains(t, stdout.String(), "encrypted: true")
}
