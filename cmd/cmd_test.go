package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/goshape/model_problems/Pipe"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default, the flags and their viper
// bindings being package state
func resetFlags() {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	for _, c := range []*cobra.Command{PipeCmd, PoissonCmd} {
		c.Flags().VisitAll(reset)
	}
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)
	return execute(args)
}

func TestPipeCmdDimension(t *testing.T) {
	err := run(t, "pipe", "--dim", "1")
	assert.ErrorIs(t, err, Pipe.ErrUnsupportedDimension)
}

func TestPoissonCmd(t *testing.T) {
	dir := t.TempDir()
	params := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(params, []byte(`
Step:
  Type: Line Search
Status Test:
  Iteration Limit: 2
`), 0644))
	trace := filepath.Join(dir, "out", "u.pvd")
	require.NoError(t, run(t, "poisson", "--n", "4", "--params", params, "--trace", trace))
	assert.FileExists(t, trace)
	assert.FileExists(t, filepath.Join(dir, "out", "u_0.vtu"))
}

func TestMissingParameterFile(t *testing.T) {
	err := run(t, "poisson", "--n", "4", "--params", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	// a stale parameter file does not leak into the next run
	assert.ErrorIs(t, run(t, "pipe", "--dim", "1"), Pipe.ErrUnsupportedDimension)
}

func TestProfileStoppedOnFailure(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for i := 0; i < 2; i++ {
		err := run(t, "pipe", "--dim", "1", "--profile")
		assert.ErrorIs(t, err, Pipe.ErrUnsupportedDimension)
		assert.Nil(t, prof)
	}
	assert.FileExists(t, "cpu.pprof")
}
