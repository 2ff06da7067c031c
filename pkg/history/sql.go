package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/snowflake"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names accepted by NewSQLLedger.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// SQLConfig contains configuration for the SQL-backed ledger.
type SQLConfig struct {
	// Driver is one of DriverSQLite, DriverPostgres, DriverMySQL.
	// Defaults to DriverSQLite.
	Driver string

	// DSN is the driver-specific connection string. For SQLite this
	// is the database file path.
	DSN string

	// TableName defaults to "memory_history".
	TableName string

	// NodeID seeds the snowflake ID generator, defaults to 1.
	NodeID int64
}

// SQLLedger implements Ledger on top of database/sql. SQLite, Postgres
// and MySQL are supported.
type SQLLedger struct {
	db        *sql.DB
	driver    string
	tableName string
	node      *snowflake.Node
}

// NewSQLLedger opens the database and creates the history table if needed.
func NewSQLLedger(cfg *SQLConfig) (*SQLLedger, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	dsn := cfg.DSN
	if driver == DriverSQLite {
		dbDir := filepath.Dir(dsn)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return nil, fmt.Errorf("NewSQLLedger: failed to create directory: %w", err)
			}
		}
		dsn = dsn + "?_journal_mode=WAL"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("NewSQLLedger: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLLedger: %w", err)
	}

	nodeID := cfg.NodeID
	if nodeID == 0 {
		nodeID = 1
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("NewSQLLedger: %w", err)
	}

	table := cfg.TableName
	if table == "" {
		table = "memory_history"
	}

	ledger := &SQLLedger{db: db, driver: driver, tableName: table, node: node}
	if err := ledger.initTable(context.Background()); err != nil {
		return nil, err
	}

	return ledger, nil
}

func (l *SQLLedger) initTable(ctx context.Context) error {
	boolType := "BOOLEAN"
	timeType := "TIMESTAMP"
	if l.driver == DriverMySQL {
		timeType = "DATETIME"
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			memory_id VARCHAR(64) NOT NULL,
			prev_value TEXT,
			new_value TEXT,
			event VARCHAR(16) NOT NULL,
			created_at %s,
			updated_at %s,
			actor_id VARCHAR(255),
			role VARCHAR(64),
			is_deleted %s DEFAULT FALSE
		)
	`, l.tableName, timeType, timeType, boolType)
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTable: %w", err)
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS; index creation failures
	// on an existing index are ignored there.
	indexQuery := fmt.Sprintf("CREATE INDEX idx_%s_memory_id ON %s(memory_id)", l.tableName, l.tableName)
	if l.driver != DriverMySQL {
		indexQuery = fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_memory_id ON %s(memory_id)", l.tableName, l.tableName)
	}
	if _, err := l.db.ExecContext(ctx, indexQuery); err != nil && l.driver != DriverMySQL {
		return fmt.Errorf("initTable: %w", err)
	}

	return nil
}

// rebind converts ? placeholders to $1..$n for Postgres.
func (l *SQLLedger) rebind(query string) string {
	if l.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Append writes a record and assigns it a snowflake ID.
func (l *SQLLedger) Append(ctx context.Context, record *Record) error {
	record.ID = l.node.Generate().Int64()

	query := l.rebind(fmt.Sprintf(`
		INSERT INTO %s (id, memory_id, prev_value, new_value, event, created_at, updated_at, actor_id, role, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.tableName))

	if _, err := l.db.ExecContext(ctx, query,
		record.ID, record.MemoryID, record.PrevValue, record.NewValue, record.Event,
		record.CreatedAt, record.UpdatedAt, record.ActorID, record.Role, record.IsDeleted,
	); err != nil {
		return fmt.Errorf("Append: %w", err)
	}

	return nil
}

// List returns all records for a memory, oldest first. Snowflake IDs
// are time-ordered so ordering by ID is chronological.
func (l *SQLLedger) List(ctx context.Context, memoryID string) ([]Record, error) {
	query := l.rebind(fmt.Sprintf(`
		SELECT id, memory_id, prev_value, new_value, event, created_at, updated_at, actor_id, role, is_deleted
		FROM %s
		WHERE memory_id = ?
		ORDER BY id ASC
	`, l.tableName))

	rows, err := l.db.QueryContext(ctx, query, memoryID)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		var prevValue, newValue, actorID, role sql.NullString
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.MemoryID, &prevValue, &newValue, &r.Event,
			&createdAt, &updatedAt, &actorID, &role, &r.IsDeleted); err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		if prevValue.Valid {
			r.PrevValue = &prevValue.String
		}
		if newValue.Valid {
			r.NewValue = &newValue.String
		}
		r.ActorID = actorID.String
		r.Role = role.String
		if createdAt.Valid {
			r.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			r.UpdatedAt = updatedAt.Time
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	return records, nil
}

// Reset removes all records.
func (l *SQLLedger) Reset(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s", l.tableName)
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("Reset: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (l *SQLLedger) Close() error {
	return l.db.Close()
}
