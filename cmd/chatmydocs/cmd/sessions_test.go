package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsCmd_HasSubcommands(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	// When: finding sessions command
	sessionsCmd, _, err := cmd.Find([]string{"sessions"})
	require.NoError(t, err)

	// Then: sessions command should have subcommands
	names := make(map[string]bool)
	for _, sc := range sessionsCmd.Commands() {
		names[sc.Name()] = true
	}
	assert.True(t, names["delete"], "should have delete command")
	assert.True(t, names["prune"], "should have prune command")
}

func TestSessionsPruneCmd_HasOlderThanFlag(t *testing.T) {
	cmd := NewRootCmd()

	pruneCmd, _, err := cmd.Find([]string{"sessions", "prune"})
	require.NoError(t, err)

	flag := pruneCmd.Flags().Lookup("older-than")
	require.NotNil(t, flag, "should have --older-than flag")
	assert.Equal(t, "30d", flag.DefValue, "default should be 30 days")
}

func TestSessions_ListDeletePrune(t *testing.T) {
	// Given: an empty store
	setupCLI(t)

	out, err := run(t, "", "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found")

	// When: a wizard session uploads a file and quits
	docs := t.TempDir()
	_, err = run(t, writeDoc(t, docs, "a.txt", "Alpha.")+"\n:quit\n", "chat")
	require.NoError(t, err)

	// Then: it is listed at the upload step
	out, err = run(t, "", "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "upload")

	// And: pruning recent sessions keeps it
	out, err = run(t, "", "sessions", "prune", "--older-than", "1d")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions to prune.")

	// And: deleting an unknown id fails
	_, err = run(t, "", "sessions", "delete", "no-such-session")
	require.Error(t, err)
}

func TestSessionsPrune_InvalidDuration(t *testing.T) {
	setupCLI(t)

	_, err := run(t, "", "sessions", "prune", "--older-than", "soon")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "30d", want: 30 * 24 * time.Hour},
		{in: "1d", want: 24 * time.Hour},
		{in: "12h", want: 12 * time.Hour},
		{in: "90m", want: 90 * time.Minute},
		{in: "xd", wantErr: true},
		{in: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{name: "zero", t: time.Time{}, want: "never"},
		{name: "seconds", t: now.Add(-10 * time.Second), want: "just now"},
		{name: "minutes", t: now.Add(-5 * time.Minute), want: "5 min ago"},
		{name: "hours", t: now.Add(-3 * time.Hour), want: "3 hours ago"},
		{name: "days", t: now.Add(-49 * time.Hour), want: "2 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTimeAgo(tt.t))
		})
	}
}
