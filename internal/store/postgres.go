package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/parleychat/parley/internal/store/migrations"
)

// Postgres implements Store on top of a PostgreSQL database reached through
// the pgx stdlib driver.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to the database at dsn, verifies the connection, and
// applies any pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return p, nil
}

func (p *Postgres) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, p.db, ".")
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) CreateUser(ctx context.Context, username, passwordHash string) error {
	// The unique constraint makes the insert conditional; there is no
	// separate existence check to race against.
	query := `INSERT INTO users (username, password)
	          VALUES ($1, $2)
	          ON CONFLICT (username) DO NOTHING`

	res, err := p.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if affected == 0 {
		return ErrDuplicate
	}

	return nil
}

func (p *Postgres) GetUser(ctx context.Context, username string) (*User, error) {
	query := `SELECT username, password FROM users WHERE username = $1`

	user := &User{}
	err := p.db.QueryRowContext(ctx, query, username).Scan(&user.Username, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}

	return user, nil
}

func (p *Postgres) FindRoom(ctx context.Context, userA, userB string) (int64, error) {
	// A room matches when both usernames appear under one room_id and the
	// room has no members beyond those two.
	query := `SELECT ru.room_id
	          FROM rooms_users ru
	          WHERE ru.username IN ($1, $2)
	          GROUP BY ru.room_id
	          HAVING COUNT(DISTINCT ru.username) = 2
	             AND (SELECT COUNT(*) FROM rooms_users m WHERE m.room_id = ru.room_id) = 2
	          LIMIT 1`

	var roomID int64
	err := p.db.QueryRowContext(ctx, query, userA, userB).Scan(&roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}

	return roomID, nil
}

func (p *Postgres) CreateRoom(ctx context.Context, userA, userB string) (int64, bool, error) {
	key := pairKey(userA, userB)
	first, second := sortedPair(userA, userB)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (pair_key) VALUES ($1) ON CONFLICT (pair_key) DO NOTHING`, key)
	if err != nil {
		return 0, false, fmt.Errorf("error performing sql request: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("error reading affected rows: %w", err)
	}
	created := affected == 1

	var roomID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM rooms WHERE pair_key = $1`, key).Scan(&roomID); err != nil {
		return 0, false, fmt.Errorf("error performing sql request: %w", err)
	}

	if created {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO rooms_users (room_id, username) VALUES ($1, $2), ($1, $3)`,
			roomID, first, second)
		if err != nil {
			return 0, false, fmt.Errorf("error performing sql request: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("error committing transaction: %w", err)
	}

	return roomID, created, nil
}

func (p *Postgres) AddMessage(ctx context.Context, msg *Message) error {
	query := `INSERT INTO messages (username, message, time, room_id)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id`

	err := p.db.QueryRowContext(ctx, query,
		msg.Username, msg.Body, msg.Time, msg.RoomID).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}

	return nil
}

func (p *Postgres) MessagesByRoom(ctx context.Context, roomID int64) ([]Message, error) {
	query := `SELECT id, username, message, time, room_id
	          FROM messages
	          WHERE room_id = $1
	          ORDER BY id DESC`

	rows, err := p.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (p *Postgres) Messages(ctx context.Context) ([]Message, error) {
	query := `SELECT id, username, message, time, COALESCE(room_id, 0)
	          FROM messages
	          ORDER BY id DESC`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Username, &m.Body, &m.Time, &m.RoomID); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return messages, nil
}
