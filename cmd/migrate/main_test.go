package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionFromFile(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"001_init.up.sql", 1, false},
		{"012_waves_index.up.sql", 12, false},
		{"init.sql", 0, true},
		{"abc_init.up.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := versionFromFile(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("versionFromFile(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("versionFromFile(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	names := []string{"001_init.up.sql", "002_wavers_index.up.sql", "003_more.up.sql"}

	pending, err := pendingMigrations(names, map[int64]bool{1: true, 3: true})
	require.NoError(t, err)
	assert.Equal(t, []migration{{name: "002_wavers_index.up.sql", version: 2}}, pending)

	pending, err = pendingMigrations(names, nil)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
	assert.Equal(t, int64(1), pending[0].version)

	_, err = pendingMigrations([]string{"init.sql"}, nil)
	assert.ErrorContains(t, err, "init.sql")
}

func TestResolveDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://flag", resolveDatabaseURL("postgres://flag", "postgres://env"))
	assert.Equal(t, "postgres://env", resolveDatabaseURL("", "postgres://env"))
	assert.Equal(t, defaultDB, resolveDatabaseURL("", ""))
}

func TestLedgerStatus_print(t *testing.T) {
	var buf bytes.Buffer
	ledgerStatus{
		owner:    "0x00000000000000000000000000000000000000aa",
		waves:    5,
		approved: 2,
		wavers:   3,
	}.print(&buf)

	out := buf.String()
	assert.Contains(t, out, "owner:   0x00000000000000000000000000000000000000aa")
	assert.Contains(t, out, "waves:   5 (2 approved, 3 pending)")
	assert.Contains(t, out, "wavers:  3")

	buf.Reset()
	ledgerStatus{}.print(&buf)
	assert.Contains(t, buf.String(), "unclaimed")
	assert.Contains(t, buf.String(), "waves:   0 (0 approved, 0 pending)")
}

func TestRootCmd_subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"up", "status"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("database"))
}
