package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"prospect-portal/internal/models"
)

// PostgresDB stores each prospect aggregate as one JSONB document
type PostgresDB struct {
	conn *sql.DB
}

// NewPostgresDB opens a lib/pq connection
func NewPostgresDB(host, port, user, password, dbname, sslmode string) (*PostgresDB, error) {
	if sslmode == "" {
		sslmode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return &PostgresDB{conn: conn}, nil
}

// NewPostgresDBFromConn wraps an open connection
func NewPostgresDBFromConn(conn *sql.DB) *PostgresDB {
	return &PostgresDB{conn: conn}
}

func (db *PostgresDB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the prospects table if it doesn't exist
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS prospects (
		id VARCHAR(36) PRIMARY KEY,
		nickname TEXT NOT NULL,
		status VARCHAR(32) NOT NULL,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_prospects_created_at ON prospects(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_prospects_status ON prospects(status);
	`
	_, err := db.conn.ExecContext(ctx, query)
	return err
}

func (db *PostgresDB) Load(ctx context.Context, id string) (models.Prospect, error) {
	var data []byte
	err := db.conn.QueryRowContext(ctx, `SELECT data FROM prospects WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Prospect{}, models.ErrNotFound
	}
	if err != nil {
		return models.Prospect{}, err
	}
	return decodeProspect(data)
}

// Save upserts the whole document
func (db *PostgresDB) Save(ctx context.Context, p models.Prospect) error {
	p.Normalize()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prospect: %w", err)
	}

	query := `
	INSERT INTO prospects (id, nickname, status, data, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		nickname = EXCLUDED.nickname,
		status = EXCLUDED.status,
		data = EXCLUDED.data,
		updated_at = EXCLUDED.updated_at
	`
	_, err = db.conn.ExecContext(ctx, query, p.ID, p.Nickname, string(p.Status), data, p.CreatedAt, p.UpdatedAt)
	return describe(err)
}

// List returns all prospects, newest first
func (db *PostgresDB) List(ctx context.Context) ([]models.Prospect, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT data FROM prospects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prospects := []models.Prospect{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p, err := decodeProspect(data)
		if err != nil {
			return nil, err
		}
		prospects = append(prospects, p)
	}
	return prospects, rows.Err()
}

func (db *PostgresDB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM prospects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func decodeProspect(data []byte) (models.Prospect, error) {
	var p models.Prospect
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Prospect{}, fmt.Errorf("decode prospect: %w", err)
	}
	p.Normalize()
	return p, nil
}

// describe adds the Postgres error code to driver errors
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("postgres %s (%s): %w", pqErr.Code, pqErr.Code.Name(), err)
	}
	return err
}
