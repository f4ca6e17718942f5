package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"enrich", "photos", "verify", "cache", "serve"} {
		assert.True(t, names[want], "command %s not registered", want)
	}
}

func TestEnrichFlags(t *testing.T) {
	for _, flag := range []string{"id", "ref", "limit", "concurrency", "force-refresh"} {
		require.NotNil(t, enrichCmd.Flags().Lookup(flag), "flag %s missing", flag)
	}
}

func TestBatchFlags(t *testing.T) {
	for _, flag := range []string{"limit", "concurrency"} {
		require.NotNil(t, photosCmd.Flags().Lookup(flag), "flag %s missing", flag)
	}
	require.NotNil(t, verifyCmd.Flags().Lookup("limit"))
	require.NotNil(t, serveCmd.Flags().Lookup("port"))
}

func TestCacheSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range cacheCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["status"])
	assert.True(t, names["clear"])
}
