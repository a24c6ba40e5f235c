package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/agentboard/agentboard/internal/common/errors"
	"github.com/agentboard/agentboard/internal/ticket/models"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

// SQLiteRepository provides SQLite-based ticket storage operations
type SQLiteRepository struct {
	db *sqlx.DB
}

// Ensure SQLiteRepository implements Repository interface
var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// initSchema creates the database tables if they don't exist
func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		state TEXT DEFAULT 'TODO',
		codebase_path TEXT DEFAULT '',
		instance_path TEXT DEFAULT '',
		run_status TEXT,
		run_log TEXT DEFAULT '',
		run_started_at DATETIME,
		run_completed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_state ON tickets(state);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// CreateTicket creates a new ticket
func (r *SQLiteRepository) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.New().String()
	}
	if ticket.State == "" {
		ticket.State = v1.TicketStateTodo
	}
	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO tickets (id, title, description, state, codebase_path, instance_path, run_status, run_log, run_started_at, run_completed_at, created_at, updated_at)
		VALUES (:id, :title, :description, :state, :codebase_path, :instance_path, :run_status, :run_log, :run_started_at, :run_completed_at, :created_at, :updated_at)
	`, ticket)

	return err
}

// GetTicket retrieves a ticket by ID
func (r *SQLiteRepository) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	ticket := &models.Ticket{}

	err := r.db.GetContext(ctx, ticket, `SELECT * FROM tickets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("ticket", id)
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// UpdateTicket updates an existing ticket
func (r *SQLiteRepository) UpdateTicket(ctx context.Context, ticket *models.Ticket) error {
	ticket.UpdatedAt = time.Now().UTC()

	result, err := r.db.NamedExecContext(ctx, `
		UPDATE tickets SET title = :title, description = :description, state = :state,
			codebase_path = :codebase_path, instance_path = :instance_path,
			run_status = :run_status, run_log = :run_log,
			run_started_at = :run_started_at, run_completed_at = :run_completed_at,
			updated_at = :updated_at
		WHERE id = :id
	`, ticket)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("ticket", ticket.ID)
	}
	return nil
}

// DeleteTicket deletes a ticket by ID
func (r *SQLiteRepository) DeleteTicket(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("ticket", id)
	}
	return nil
}

// ListTickets returns all tickets ordered by creation time
func (r *SQLiteRepository) ListTickets(ctx context.Context) ([]*models.Ticket, error) {
	var result []*models.Ticket
	err := r.db.SelectContext(ctx, &result, `SELECT * FROM tickets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateTicketState updates the workflow state of a ticket
func (r *SQLiteRepository) UpdateTicketState(ctx context.Context, id string, state v1.TicketState) error {
	result, err := r.db.ExecContext(ctx, `UPDATE tickets SET state = ?, updated_at = ? WHERE id = ?`, state, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("ticket", id)
	}
	return nil
}
