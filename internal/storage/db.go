package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kakeibo/internal/config"
	"kakeibo/internal/models"

	// Import database drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = config.DriverSQLite
	DriverPostgres = config.DriverPostgres
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB wraps a pooled sql.DB connection.
type DB struct {
	conn   *sql.DB
	driver string
}

// NewDB opens a sqlite database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	return Open(config.DBConfig{
		Driver:       DriverSQLite,
		Path:         path,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
}

// Open connects to the configured database, tunes the connection pool and
// runs migrations.
func Open(cfg config.DBConfig) (*DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	conn, err := sql.Open(sqlDriverName(cfg.Driver), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.Driver != DriverPostgres && isMemory(cfg.Path) {
		// every new connection to :memory: would see an empty database
		conn.SetMaxOpenConns(1)
		conn.SetConnMaxLifetime(0)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(conn, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, driver: cfg.Driver}, nil
}

func sqlDriverName(driver string) string {
	if driver == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// rebind rewrites ? placeholders into $n for postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateUser inserts a new user. Email uniqueness is not enforced.
func (db *DB) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		db.rebind("INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?) RETURNING id"),
		username, email, passwordHash,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.getUser(ctx, "WHERE id = ?", id)
}

// GetUserByEmail retrieves the earliest registered user with the given email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, "WHERE email = ? ORDER BY id LIMIT 1", email)
}

// GetUserByUsername retrieves the earliest registered user with the given username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.getUser(ctx, "WHERE username = ? ORDER BY id LIMIT 1", username)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT id, username, email, password_hash, created_at FROM users "+where),
		arg,
	)

	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateRecord inserts a record owned by userID and returns its id.
func (db *DB) CreateRecord(ctx context.Context, userID int64, date time.Time, category string, amount int64, typ models.RecordType) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		db.rebind("INSERT INTO records (user_id, date, category, amount, type) VALUES (?, ?, ?, ?, ?) RETURNING id"),
		userID, date.Format(models.DateLayout), category, amount, string(typ),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create record: %w", err)
	}
	return id, nil
}

// ListRecords returns every record of userID, latest date first.
func (db *DB) ListRecords(ctx context.Context, userID int64) ([]models.Record, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, user_id, CAST(date AS TEXT), category, amount, type
		FROM records
		WHERE user_id = ?
		ORDER BY date DESC, id DESC
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var (
			r       models.Record
			dateStr string
			typ     string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &dateStr, &r.Category, &r.Amount, &typ); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if r.Date, err = parseDate(dateStr); err != nil {
			return nil, fmt.Errorf("record %d: %w", r.ID, err)
		}
		r.Type = models.RecordType(typ)
		records = append(records, r)
	}

	return records, rows.Err()
}

// DeleteRecord removes the record only when it belongs to userID and
// reports how many rows were affected.
func (db *DB) DeleteRecord(ctx context.Context, userID, id int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		db.rebind("DELETE FROM records WHERE id = ? AND user_id = ?"),
		id, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete record: %w", err)
	}
	return res.RowsAffected()
}

func parseDate(s string) (time.Time, error) {
	if len(s) > len(models.DateLayout) {
		s = s[:len(models.DateLayout)]
	}
	return time.Parse(models.DateLayout, s)
}
