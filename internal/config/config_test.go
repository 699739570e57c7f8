package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, BrokerLog, cfg.Broker)
	assert.Equal(t, "EPAYTEST", cfg.ESewa.ProductCode)
	assert.Equal(t, "https://rc-epay.esewa.com.np/api/epay/main/v2/form", cfg.ESewa.FormURL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, time.Minute, cfg.Outbox.ClaimTimeout)
	assert.Equal(t, "orders_topic", cfg.RabbitMQ.Exchange)
	assert.Empty(t, cfg.AdminToken)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BROKER", "kafka")
	t.Setenv("PUBLIC_ORIGIN", "https://shop.example.com/")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "https://shop.example.com", cfg.PublicOrigin)
	assert.Contains(t, cfg.GetDBConnString(), "host=db.internal port=5432")
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ADMIN_TOKEN=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ADMIN_TOKEN") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.AdminToken)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoad_InvalidBroker(t *testing.T) {
	t.Setenv("BROKER", "nats")

	_, err := Load("")
	assert.ErrorContains(t, err, "invalid BROKER")
}
