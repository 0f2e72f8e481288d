package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/xaenox/wa-crm-bot/internal/models"
	"go.uber.org/zap"
)

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	SSLMode       string
	RunMigrations bool
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	if config.RunMigrations {
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("error initializing database schema: %w", err)
		}
		logger.Info("Database schema is up to date", zap.String("dbname", config.DBName))
	}

	return newPostgresStorage(db, logger), nil
}

func newPostgresStorage(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger, now: time.Now}
}

func (s *PostgresStorage) FindUserByPhone(ctx context.Context, phone string) (*models.User, bool, error) {
	query := `
		SELECT id, name, phone, language, created_at, intent_identified
		FROM users
		WHERE phone = $1
		ORDER BY id
		LIMIT 1`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, phone).Scan(
		&user.ID,
		&user.Name,
		&user.Phone,
		&user.Language,
		&user.CreatedAt,
		&user.IntentIdentified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error querying user: %w", err)
	}
	return user, true, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	// A concurrent insert for the same phone returns the existing row
	query := `
		INSERT INTO users (name, phone, language)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, name, language, created_at, intent_identified`

	err := s.db.QueryRowContext(ctx, query, user.Name, user.Phone, user.Language).Scan(
		&user.ID,
		&user.Name,
		&user.Language,
		&user.CreatedAt,
		&user.IntentIdentified,
	)
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (s *PostgresStorage) LoadHistory(ctx context.Context, userID int64) ([]models.Turn, error) {
	query := `
		SELECT role, content
		FROM messages
		WHERE user_id = $1
		ORDER BY timestamp, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	history := []models.Turn{}
	for rows.Next() {
		var turn models.Turn
		if err := rows.Scan(&turn.Role, &turn.Text); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		history = append(history, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return history, nil
}

func (s *PostgresStorage) SaveTurn(ctx context.Context, userID int64, userText, assistantText string) error {
	query := `
		INSERT INTO messages (user_id, role, content, timestamp)
		VALUES ($1, $2, $3, $4)`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Postgres keeps microseconds; the assistant row must sort after the user row
	ts := s.now().UTC().Truncate(time.Microsecond)
	if _, err := tx.ExecContext(ctx, query, userID, models.RoleUser, userText, ts); err != nil {
		return fmt.Errorf("error saving user message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, userID, models.RoleAssistant, assistantText, ts.Add(time.Microsecond)); err != nil {
		return fmt.Errorf("error saving assistant message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing messages: %w", err)
	}
	return nil
}

func (s *PostgresStorage) LastLead(ctx context.Context, userID int64) (*models.Lead, bool, error) {
	query := `
		SELECT id, user_id, intent, status, created_at
		FROM leads
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	lead := &models.Lead{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&lead.ID,
		&lead.UserID,
		&lead.Intent,
		&lead.Status,
		&lead.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error querying last lead: %w", err)
	}
	return lead, true, nil
}

func (s *PostgresStorage) CreateLead(ctx context.Context, lead *models.Lead) error {
	query := `
		INSERT INTO leads (user_id, intent, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}

	err := s.db.QueryRowContext(ctx, query, lead.UserID, lead.Intent, lead.Status).Scan(&lead.ID, &lead.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating lead: %w", err)
	}

	s.logger.Info("Lead recorded",
		zap.Int64("lead_id", lead.ID),
		zap.Int64("user_id", lead.UserID),
		zap.String("intent", string(lead.Intent)))
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
