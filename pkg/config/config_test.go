package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLeaderTable(t *testing.T) {
	t.Setenv("LEADERS", "A, B")
	t.Setenv("LOCAL_LEADERS", "B")
	t.Setenv("LEADER_B_HOST", "10.0.0.2")
	t.Setenv("LEADER_B_PORT", "6543")
	t.Setenv("CONNECT_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, cfg.Cluster.IDs())
	assert.Equal(t, []string{"B"}, cfg.Cluster.LocalLeaders)
	assert.Equal(t, 2*time.Second, cfg.Replication.ConnectTimeout)

	a, ok := cfg.Cluster.Leader("A")
	require.True(t, ok)
	assert.Equal(t, "localhost", a.Database.Host)
	assert.Equal(t, 5432, a.Database.Port)
	assert.Equal(t, "db_a", a.Database.Name)

	b, ok := cfg.Cluster.Leader("B")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", b.Database.Host)
	assert.Equal(t, 6543, b.Database.Port)
}

func TestLoadRejectsUnknownLocalLeader(t *testing.T) {
	t.Setenv("LEADERS", "A,B")
	t.Setenv("LOCAL_LEADERS", "Z")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Z"`)
}

func TestClusterValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClusterConfig
		wantErr bool
	}{
		{name: "empty", cfg: ClusterConfig{}, wantErr: true},
		{name: "duplicate", cfg: ClusterConfig{Leaders: []LeaderConfig{{ID: "A"}, {ID: "A"}}, LocalLeaders: []string{"A"}}, wantErr: true},
		{name: "no local", cfg: ClusterConfig{Leaders: []LeaderConfig{{ID: "A"}}}, wantErr: true},
		{name: "valid", cfg: ClusterConfig{Leaders: []LeaderConfig{{ID: "A"}, {ID: "B"}}, LocalLeaders: []string{"A"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
