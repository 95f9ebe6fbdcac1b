package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// execute runs the CLI with a silent logger and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{Logger: zap.NewNop()})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lore", cmd.Use)
	assert.Contains(t, cmd.Long, "proof trees")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"learn", "query", "prove", "replay", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestDatabaseFlagRequired(t *testing.T) {
	for _, args := range [][]string{
		{"learn", "theory.yaml"},
		{"query", "isA", "?x", "Bird"},
		{"prove", "isA", "Tweety", "Bird"},
		{"replay"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "required flag")
			assert.Contains(t, err.Error(), "db")
		})
	}
}

func TestQueryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	queryCmd, _, err := cmd.Find([]string{"query"})
	require.NoError(t, err)

	for _, name := range []string{"exact", "log"} {
		flag := queryCmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "false", flag.DefValue)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("golden"))
	assert.Equal(t, "4", testCmd.Flags().Lookup("parallel").DefValue)
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, "--format", "xml", "replay", "--db", "kb.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestBadConfigIsCommandError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "engine.yaml", "strategy: quantum\n")

	_, err := execute(t, "--config", path, "learn", "--db", dir+"/kb.db", writeFile(t, dir, "t.txt", "p a\n"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "quantum")
}

func TestExecute_TextErrorGoesToStderr(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	db := filepath.Join(t.TempDir(), "none.db")

	code := Execute(context.Background(), []string{"query", "--db", db, "p", "?x"}, stdout, stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "lore: database not found")
}

func TestExecute_JSONErrorResponse(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	db := filepath.Join(t.TempDir(), "none.db")

	code := Execute(context.Background(), []string{"--format", "json", "query", "--db", db, "p", "?x"}, stdout, stderr)
	assert.Equal(t, ExitCommandError, code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestExecute_ReportedFailureIsNotRepeated(t *testing.T) {
	dir := t.TempDir()
	theory := writeFile(t, dir, "t.txt", "isA Tweety Bird\nlikes $nobody Pizza\n")
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	code := Execute(context.Background(),
		[]string{"--format", "json", "learn", "--db", filepath.Join(dir, "kb.db"), theory}, stdout, stderr)
	assert.Equal(t, ExitFailure, code)

	dec := json.NewDecoder(stdout)
	var resp CLIResponse
	require.NoError(t, dec.Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeLearn, resp.Error.Code)
	assert.False(t, dec.More(), "failure written twice")
}
