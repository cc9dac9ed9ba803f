package console

import (
	"context"
	"fmt"
	"time"

	"axiapac.com/workforce/config"
	"axiapac.com/workforce/infrastructure/devops"
	"github.com/go-sql-driver/mysql"
)

// DSNOptions controls the driver level timeouts of a DSN.
type DSNOptions struct {
	Timeout     time.Duration
	ReadTimeout time.Duration
}

// BuildDSN returns a go-sql-driver DSN for the given credentials.
func BuildDSN(host string, port int, user, password, dbName string, opts DSNOptions) string {
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = dbName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Timeout = opts.Timeout
	cfg.ReadTimeout = opts.ReadTimeout
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// TenantDSN returns the DSN of a company database.
func TenantDSN(c *Company, opts DSNOptions) string {
	return BuildDSN(c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, opts)
}

// MasterDSN resolves the master database credentials, from SSM when a parameter
// name is configured and from the environment otherwise.
func MasterDSN(ctx context.Context, db config.Database, opts DSNOptions) (string, error) {
	if db.SSMParam == "" {
		return BuildDSN(db.Host, db.Port, db.User, db.Password, db.Name, opts), nil
	}

	databases, err := devops.LoadDBConfig(ctx, db.SSMParam)
	if err != nil {
		return "", err
	}
	entry := devops.FindEntry(databases, db.Name)
	if entry == nil {
		return "", fmt.Errorf("master database %q not found in parameter %s", db.Name, db.SSMParam)
	}
	return BuildDSN(entry.Host, entry.Port, entry.Username, entry.Password, entry.Name, opts), nil
}
