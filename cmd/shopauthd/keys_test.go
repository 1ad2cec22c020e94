package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/shopauth/password"
)

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestGenKeys(t *testing.T) {
	out := run(t, "", "gen-keys")
	require.Equal(t, 2, strings.Count(out, "BEGIN PRIVATE KEY"))
	require.Equal(t, 2, strings.Count(out, "BEGIN PUBLIC KEY"))
}

func TestHashPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shopauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("password:\n  algorithm: bcrypt\n  bcrypt_cost: 4\n"), 0o600))

	out := strings.TrimSpace(run(t, "s3cret-value\n", "--config", path, "hash-password"))
	require.True(t, strings.HasPrefix(out, "$2"), out)

	bc, err := password.NewBcrypt(password.BcryptConfig{Cost: 4})
	require.NoError(t, err)
	ok, err := bc.Verify("s3cret-value", out)
	require.NoError(t, err)
	require.True(t, ok)
}
