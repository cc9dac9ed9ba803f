package console

import (
	"context"
	"testing"
	"time"

	"axiapac.com/workforce/config"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN("db.internal", 0, "svc", "p@ss:word", "acme", DSNOptions{Timeout: 3 * time.Second})

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:3306", parsed.Addr)
	assert.Equal(t, "svc", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "acme", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, 3*time.Second, parsed.Timeout)
}

func TestMasterDSNFromEnvironment(t *testing.T) {
	dsn, err := MasterDSN(context.Background(), config.Database{
		Host: "master", Port: 3307, User: "root", Password: "x", Name: "workforce",
	}, DSNOptions{})
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "master:3307", parsed.Addr)
	assert.Equal(t, "workforce", parsed.DBName)
}

func TestCompanyHelpers(t *testing.T) {
	assert.Equal(t, "ACME", NormalizeCode("  acme "))

	c := &Company{Timezone: "Australia/Brisbane"}
	assert.Equal(t, "Australia/Brisbane", c.Location().String())
	assert.Equal(t, time.UTC, (&Company{Timezone: "Nowhere/Special"}).Location())

	a := &Company{DBHost: "h", DBPort: 3306, DBUser: "u", DBPassword: "one", DBName: "n"}
	b := *a
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	b.DBPassword = "two"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
