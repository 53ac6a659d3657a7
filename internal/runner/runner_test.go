package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFuzzerScript lays out <fuzzersDir>/<fuzzerKey>/run.sh, mirroring the
// directory-per-fuzzer layout Exec.Run resolves against.
func writeFuzzerScript(t *testing.T, fuzzerKey, body string) string {
	t.Helper()
	fuzzersDir := t.TempDir()
	dir := filepath.Join(fuzzersDir, fuzzerKey)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(body), 0o755))
	return fuzzersDir
}

func TestExec_Run_SuccessExitsZero(t *testing.T) {
	fuzzersDir := writeFuzzerScript(t, "slither", "#!/bin/sh\nexit 0\n")
	code, err := (Exec{}).Run(context.Background(), Job{FuzzersDir: fuzzersDir, FuzzerKey: "slither", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExec_Run_PropagatesNonZeroExit(t *testing.T) {
	fuzzersDir := writeFuzzerScript(t, "slither", "#!/bin/sh\nexit 7\n")
	code, err := (Exec{}).Run(context.Background(), Job{FuzzersDir: fuzzersDir, FuzzerKey: "slither", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestExec_Run_MissingScriptIsNotFatal(t *testing.T) {
	code, err := (Exec{}).Run(context.Background(), Job{FuzzersDir: t.TempDir(), FuzzerKey: "nope", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 127, code)
}

func TestExec_Run_PassesShardIdentityViaEnv(t *testing.T) {
	fuzzersDir := writeFuzzerScript(t, "slither", `#!/bin/sh
test "$SHARD_KEY" = "slither-0" || exit 1
test "$SHARD_ATTEMPT" = "2" || exit 2
exit 0
`)
	code, err := (Exec{}).Run(context.Background(), Job{
		FuzzersDir: fuzzersDir,
		FuzzerKey:  "slither",
		WorkDir:    t.TempDir(),
		ShardKey:   "slither-0",
		Attempt:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExec_Run_DifferentFuzzerKeysResolveDifferentScripts(t *testing.T) {
	fuzzersDir := t.TempDir()
	for key, exit := range map[string]string{"slither": "exit 0\n", "mythril": "exit 9\n"} {
		dir := filepath.Join(fuzzersDir, key)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"+exit), 0o755))
	}

	code, err := (Exec{}).Run(context.Background(), Job{FuzzersDir: fuzzersDir, FuzzerKey: "slither", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	code, err = (Exec{}).Run(context.Background(), Job{FuzzersDir: fuzzersDir, FuzzerKey: "mythril", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 9, code)
}
