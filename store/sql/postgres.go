package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type postgresPersistenceConfig struct {
	dsn   string
	debug bool
}

func (c postgresPersistenceConfig) GetDebug() bool {
	return c.debug
}

func (c postgresPersistenceConfig) GetDriver() string {
	return "postgres"
}

func (c postgresPersistenceConfig) GetServer() string {
	return c.dsn
}

func (c postgresPersistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c postgresPersistenceConfig) GetOtelIdentifier() string {
	return "go-authflow"
}

// NewPostgresClient opens a postgres-backed persistence client for the
// flow ticket store. The caller owns Migrate and Close.
func NewPostgresClient(dsn string, debug bool) (*persistence.Client, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	client, err := persistence.New(postgresPersistenceConfig{dsn: dsn, debug: debug}, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return client, nil
}
