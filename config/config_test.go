package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	var c Config
	require.NoError(t, env.Parse(&c))
	require.NoError(t, c.Validate())

	assert.Equal(t, 7, c.BusinessUTCOffsetHours)
	assert.Equal(t, 2*time.Second, c.QuestSignalTimeout)
	assert.Equal(t, int64(10), c.CheckInCoinReward)
	assert.Equal(t, int64(1), c.CheckInCycleBonusDiamond)
	assert.Empty(t, c.GetReplicaDSN())
}

func TestRequireJWT(t *testing.T) {
	c := Config{BusinessUTCOffsetHours: 7}
	assert.NoError(t, c.Validate())
	assert.Error(t, c.RequireJWT())

	c.JWTSecret = "secret"
	assert.NoError(t, c.RequireJWT())
}

func TestValidateRejectsOffset(t *testing.T) {
	c := Config{BusinessUTCOffsetHours: 15}
	assert.Error(t, c.Validate())
}

func TestReplicaDSN(t *testing.T) {
	c := Config{
		PostgreSQLReplicaHost: "replica",
		PostgreSQLReplicaPort: "6432",
		PostgreSQLUser:        "u",
		PostgreSQLPassword:    "p",
		PostgreSQLDatabase:    "db",
		PostgreSQLSSLMode:     "disable",
		PostgreSQLSchema:      "public",
	}
	assert.Contains(t, c.GetReplicaDSN(), "host=replica port=6432")
}
