package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-enrollment-sync/pkg/config"
)

func TestDSNRoundsConnectTimeoutUp(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db-b", Port: 5433, User: "user_b", Password: "pass_b", Name: "db_b", SSLMode: "disable"}

	dsn := DSN(cfg, 1500*time.Millisecond)
	assert.Equal(t, "host=db-b port=5433 user=user_b password=pass_b dbname=db_b sslmode=disable connect_timeout=2", dsn)
	assert.NotContains(t, DSN(cfg, 0), "connect_timeout")
}
