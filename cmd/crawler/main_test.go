package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunUsageErrors(t *testing.T) {
	for name, args := range map[string][]string{
		"unknown flag":    {"--nope"},
		"unknown command": {"reindex"},
		"too many args":   {"crawl", "serve"},
		"unknown mode":    {"--mode", "xml"},
		"bad flag value":  {"--max-pages", "many"},
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, exitUsage, run(args))
		})
	}
}

func TestRunHelp(t *testing.T) {
	require.Equal(t, exitOK, run([]string{"--help"}))
}
