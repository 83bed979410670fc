package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const cardColumns = `id, source, finder_contact, location_description, box_id, pickup_code,
		status, red_id, full_name, email, created_at, picked_up_at`

const schema = `
	CREATE SCHEMA IF NOT EXISTS lostcard;
	CREATE TABLE IF NOT EXISTS lostcard.cards (
		seq                  BIGSERIAL,
		id                   TEXT PRIMARY KEY,
		source               TEXT NOT NULL,
		finder_contact       TEXT,
		location_description TEXT,
		box_id               TEXT,
		pickup_code          TEXT,
		status               TEXT NOT NULL,
		red_id               TEXT,
		full_name            TEXT,
		email                TEXT,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		picked_up_at         TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS cards_pickup_idx ON lostcard.cards (box_id, pickup_code);`

// PostgresStore provides card persistence on PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore initializes a new postgres-backed card store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens and pings a database connection
func OpenPostgres(conn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the cards table if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Create inserts a new card
func (s *PostgresStore) Create(ctx context.Context, card models.Card) (*models.Card, error) {
	if card.Status == "" {
		card.Status = models.StatusWaitingForEmail
	}
	query := `
		INSERT INTO lostcard.cards (id, source, finder_contact, location_description, box_id,
			pickup_code, status, red_id, full_name, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP)
		RETURNING created_at`
	for attempt := 0; attempt < 3; attempt++ {
		card.ID = uuid.NewString()
		err := s.db.QueryRowContext(ctx, query,
			card.ID, card.Source, card.FinderContact, card.LocationDescription, card.BoxID,
			card.PickupCode, card.Status, card.RedID, card.FullName, card.Email).
			Scan(&card.CreatedAt)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create card: %w", err)
		}
		card.CreatedAt = card.CreatedAt.UTC()
		return &card, nil
	}
	return nil, fmt.Errorf("failed to create card: id collision")
}

// FindByID retrieves a card by id
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM lostcard.cards WHERE id = $1`
	return s.findOne(ctx, query, id)
}

// FindByReferenceCode retrieves the earliest card whose id starts with code
func (s *PostgresStore) FindByReferenceCode(ctx context.Context, code string) (*models.Card, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + cardColumns + ` FROM lostcard.cards
		WHERE upper(substr(id, 1, 8)) = $1
		ORDER BY seq
		LIMIT 1`
	return s.findOne(ctx, query, code)
}

// FindByPickupCode retrieves the card holding code in boxID, preferring one not yet picked up
func (s *PostgresStore) FindByPickupCode(ctx context.Context, code, boxID string) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM lostcard.cards
		WHERE pickup_code = $1 AND box_id = $2
		ORDER BY (status = $3), seq
		LIMIT 1`
	return s.findOne(ctx, query, code, boxID, models.StatusPickedUp)
}

// Update applies patch inside a row-locking transaction
func (s *PostgresStore) Update(ctx context.Context, id string, patch models.CardPatch) (*models.Card, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + cardColumns + ` FROM lostcard.cards WHERE id = $1 FOR UPDATE`
	card, err := scanCard(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := checkExpected(card, patch); err != nil {
		return nil, err
	}
	patch.Apply(card)

	update := `
		UPDATE lostcard.cards
		SET pickup_code = $2, status = $3, red_id = $4, full_name = $5, email = $6, picked_up_at = $7
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		card.ID, card.PickupCode, card.Status, card.RedID, card.FullName, card.Email, card.PickedUpAt); err != nil {
		return nil, fmt.Errorf("failed to update card: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit card update: %w", err)
	}
	return card, nil
}

// GetAll lists cards matching filter in creation order
func (s *PostgresStore) GetAll(ctx context.Context, filter models.CardFilter) ([]*models.Card, error) {
	query, args := buildListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	cards := []*models.Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

func buildListQuery(filter models.CardFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Status != nil {
		add("status", string(*filter.Status))
	}
	if filter.Source != nil {
		add("source", string(*filter.Source))
	}
	if filter.BoxID != nil {
		add("box_id", *filter.BoxID)
	}

	query := `SELECT ` + cardColumns + ` FROM lostcard.cards`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	return query + ` ORDER BY seq`, args
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.Card, error) {
	return scanCard(s.db.QueryRowContext(ctx, query, args...))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	var (
		card                        models.Card
		finder, location, box, code sql.NullString
		redID, fullName, email      sql.NullString
		pickedUpAt                  sql.NullTime
		source, status              string
	)
	err := row.Scan(&card.ID, &source, &finder, &location, &box, &code,
		&status, &redID, &fullName, &email, &card.CreatedAt, &pickedUpAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan card: %w", err)
	}
	card.Source = models.Source(source)
	card.Status = models.Status(status)
	card.FinderContact = nullString(finder)
	card.LocationDescription = nullString(location)
	card.BoxID = nullString(box)
	card.PickupCode = nullString(code)
	card.RedID = nullString(redID)
	card.FullName = nullString(fullName)
	card.Email = nullString(email)
	card.CreatedAt = card.CreatedAt.UTC()
	if pickedUpAt.Valid {
		t := pickedUpAt.Time.UTC()
		card.PickedUpAt = &t
	}
	return &card, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

var (
	_ CardStore = (*PostgresStore)(nil)
	_ CardStore = (*MemoryStore)(nil)
)
