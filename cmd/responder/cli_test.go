package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	pattern := filepath.Join(t.TempDir(), "pattern_bad.regexp")
	require.NoError(t, os.WriteFile(pattern, []byte("диплом|курсов\n"), 0o644))

	tests := []struct {
		name    string
		subject string
		aim     string
		want    string
	}{
		{name: "eligible", subject: "Математика", aim: "подготовка к ЕГЭ", want: "✓ eligible"},
		{name: "excluded", subject: "Экономика", aim: "Дипломная работа", want: `✗ excluded by "диплом"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "classify", "--pattern", pattern, "--subject", tt.subject, "--aim", tt.aim)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestClassifyCommand_MissingPatternFile(t *testing.T) {
	_, err := execute(t, "classify", "--pattern", filepath.Join(t.TempDir(), "missing"), "--subject", "x", "--aim", "y")
	assert.Error(t, err)
}

func TestSeenCommands(t *testing.T) {
	dsn := "file://" + filepath.Join(t.TempDir(), "orders_id.json")

	out, err := execute(t, "seen", "has", "42", "--store", dsn)
	require.NoError(t, err)
	assert.Equal(t, "42: not seen\n", out)

	out, err = execute(t, "seen", "add", "42", "--store", dsn)
	require.NoError(t, err)
	assert.Equal(t, "42: seen\n", out)

	out, err = execute(t, "seen", "has", "42", "--store", dsn)
	require.NoError(t, err)
	assert.Equal(t, "42: seen\n", out)
}

func TestSeenCommand_RequiresID(t *testing.T) {
	_, err := execute(t, "seen", "has")
	assert.Error(t, err)
}
