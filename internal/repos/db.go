package repos

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"storefront/internal/domain"
)

//go:embed migrations
var migrationsFS embed.FS

// Fixed role ids so seeds and tests can reference them.
const (
	AdminRoleID = "role-admin"
	UserRoleID  = "role-user"
)

// OpenDB connects to driver ("sqlite" or "postgres"), applies pending
// migrations and makes sure the role table is populated.
func OpenDB(driver, dsn string) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case "sqlite":
		db, err = openSQLite(dsn)
	case "postgres":
		db, err = openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := seedRoles(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openSQLite(dsn string) (*sqlx.DB, error) {
	if !strings.Contains(dsn, "_pragma=foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: every :memory: connection is a separate database, and
	// sqlite serialises writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openPostgres(dsn string) (*sqlx.DB, error) {
	const (
		maxAttempts = 5
		baseDelay   = 500 * time.Millisecond
	)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		db, err := sqlx.Open("postgres", dsn)
		if err != nil {
			lastErr = err
			sleepWithBackoff(attempt, baseDelay)
			continue
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		lastErr = db.PingContext(ctx)
		cancel()
		if lastErr == nil {
			return db, nil
		}
		_ = db.Close()
		log.Warn().Err(lastErr).Int("attempt", attempt).Msg("database not ready, retrying")
		sleepWithBackoff(attempt, baseDelay)
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxAttempts, lastErr)
}

func sleepWithBackoff(attempt int, base time.Duration) {
	d := base << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	time.Sleep(d)
}

// Migrate applies the embedded migrations for the connection's driver.
// The migrate instance is not closed: that would close db as well.
func Migrate(db *sqlx.DB) error {
	var (
		drv database.Driver
		err error
	)
	dir := "migrations/" + db.DriverName()
	switch db.DriverName() {
	case "sqlite":
		drv, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	case "postgres":
		drv, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		return fmt.Errorf("no migrations for driver %q", db.DriverName())
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, db.DriverName(), drv)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	v, dirty, _ := m.Version()
	log.Debug().Uint("version", v).Bool("dirty", dirty).Str("driver", db.DriverName()).Msg("schema up to date")
	return nil
}

func seedRoles(db *sqlx.DB) error {
	_, err := db.Exec(db.Rebind(`
		INSERT INTO roles(id, name) VALUES (?, ?), (?, ?)
		ON CONFLICT DO NOTHING
	`), AdminRoleID, domain.RoleAdmin, UserRoleID, domain.RoleUser)
	return err
}

// DemoPassword is the password of every seeded demo account.
const DemoPassword = "Passw0rd!"

// SeedDemo inserts demo users and products. Safe to run on every start.
func SeedDemo(db *sqlx.DB) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	users := []struct{ ID, Email, Name, RoleID string }{
		{"u-admin", "admin@storefront.test", "Admin", AdminRoleID},
		{"u-alice", "alice@storefront.test", "Alice", UserRoleID},
		{"u-bob", "bob@storefront.test", "Bob", UserRoleID},
	}
	products := []struct {
		ID, Name, Description, Price string
		Stock                        int
	}{
		{"p-headphones", "Wireless Headphones", "Over-ear, 30h battery life.", "249900", 8},
		{"p-keyboard", "Mechanical Keyboard", "Hot-swappable switches, USB-C.", "389900", 3},
		{"p-mouse", "Ergonomic Mouse", "", "99900", 0},
		{"p-webcam", "HD Webcam", "1080p with privacy shutter.", "159900", 12},
	}

	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range users {
		if _, err := tx.Exec(tx.Rebind(`
			INSERT INTO users(id, email, name, password_hash, role_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`), u.ID, u.Email, u.Name, string(hash), u.RoleID); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	for _, p := range products {
		var desc *string
		if p.Description != "" {
			desc = &p.Description
		}
		if _, err := tx.Exec(tx.Rebind(`
			INSERT INTO products(id, name, description, price, stock)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`), p.ID, p.Name, desc, p.Price, p.Stock); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Debug().Int("users", len(users)).Int("products", len(products)).Msg("demo data seeded")
	return nil
}
