package database

import (
	"io"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	r, _, err := src.ReadUp(next)
	require.NoError(t, err)
	defer r.Close()

	up, err := io.ReadAll(r)
	require.NoError(t, err)

	// amounts are stored as given, without decimal rounding
	assert.Contains(t, string(up), "total_amount TYPE DOUBLE PRECISION")
	assert.Contains(t, string(up), "price TYPE DOUBLE PRECISION")
	assert.Contains(t, string(up), "claimed_at TIMESTAMP")

	down, _, err := src.ReadDown(next)
	require.NoError(t, err)
	down.Close()
}
