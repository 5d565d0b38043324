package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCmd_RegistersEveryAdministrativeSubcommand(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"serve", "identity", "peer", "mood", "autonomy", "context", "patterns"} {
		assert.True(t, names[want], "expected %q subcommand to be registered", want)
	}
}

func TestIdentityCmd_HasShowAndUpdateHost(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range identityCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["show"])
	assert.True(t, names["update-host"])
}

func TestPeerCmd_HasFullLifecycle(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range peerCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"list", "add", "remove", "block", "unblock"} {
		assert.True(t, names[want], "expected %q peer subcommand to be registered", want)
	}
}
