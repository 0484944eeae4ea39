package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"up", "down", "seed", "status", "bootstrap-admin"})
}

func TestMissingDSNFails(t *testing.T) {
	t.Setenv("ITDESK_DATABASE_DSN", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"status"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing DSN")
}

func TestBootstrapAdminRequiresEmail(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"bootstrap-admin", "--dsn", "postgres://unused"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}
