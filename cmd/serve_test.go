package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCmd_Structure(t *testing.T) {
	root := NewRootCmd()
	assert.Equal(t, "cipherd", root.Use)
	assert.NotNil(t, root.Flags().Lookup("config"))

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["logs"])
}

func TestNewRootCmd_RoutesToLogs(t *testing.T) {
	root := NewRootCmd()
	cmd, _, err := root.Find([]string{"logs", "--size", "5"})
	assert.NoError(t, err)
	assert.Equal(t, "logs", cmd.Name())
}

func TestNewRootCmd_RejectsUnknownArguments(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"frobnicate"})
	assert.Error(t, root.Execute())
}
