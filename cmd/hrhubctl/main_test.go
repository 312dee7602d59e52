package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunWithoutCommandPrintsUsage(t *testing.T) {
	stderr := new(bytes.Buffer)
	assert.Equal(t, 2, run(nil, new(bytes.Buffer), stderr))
	assert.Contains(t, stderr.String(), "Usage:")
	assert.Contains(t, stderr.String(), "prune-audit")
}

func TestRunUnknownCommand(t *testing.T) {
	stderr := new(bytes.Buffer)
	assert.Equal(t, 2, run([]string{"explode"}, new(bytes.Buffer), stderr))
	assert.Contains(t, stderr.String(), `unknown command "explode"`)
}

func TestRunRejectsBadFlags(t *testing.T) {
	stderr := new(bytes.Buffer)
	assert.Equal(t, 2, run([]string{"queue", "--bogus"}, new(bytes.Buffer), stderr))
	assert.Contains(t, stderr.String(), "unknown flag: --bogus")
}

func TestRunRejectsPositionalArgs(t *testing.T) {
	assert.Equal(t, 2, run([]string{"check", "u-1"}, new(bytes.Buffer), new(bytes.Buffer)))
}

func TestExitCodeKeepsStatus(t *testing.T) {
	var err error = exitCode(10)
	assert.Equal(t, "exit status 10", err.Error())
}

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd(new(bytes.Buffer), new(bytes.Buffer))
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"check", "effective", "prune-audit", "queue"})

	check, _, err := root.Find([]string{"check"})
	if assert.NoError(t, err) {
		for _, flag := range []string{"user", "code", "resource", "json"} {
			assert.NotNil(t, check.Flags().Lookup(flag), flag)
		}
	}
}
