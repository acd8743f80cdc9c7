package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath, migrates the
// schema, and seeds sample data on first run.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL keeps reads from blocking the seeding writes.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := store.seed(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS faqs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		keywords TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_faqs_question ON faqs(question);

	CREATE TABLE IF NOT EXISTS user_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		account_number TEXT NOT NULL UNIQUE,
		balance REAL NOT NULL DEFAULT 0,
		email TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_accounts_username ON user_accounts(username);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// seed inserts the sample FAQ corpus and demo accounts into empty tables.
func (s *SQLiteStore) seed(ctx context.Context) error {
	faqCount, userCount, err := s.Counts(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if faqCount == 0 {
		faqs := []FAQ{
			{
				Question: "What are your business hours?",
				Answer:   "We are open Monday to Friday from 9 AM to 6 PM EST.",
				Keywords: "hours,time,open,when,business",
			},
			{
				Question: "How can I contact support?",
				Answer:   "You can contact our support team via email at support@company.com or call us at 1-800-123-4567.",
				Keywords: "contact,support,help,email,phone,reach",
			},
			{
				Question: "What is your pricing?",
				Answer:   "Our basic plan starts at $29/month. Premium plans are available at $79/month and Enterprise at $199/month.",
				Keywords: "price,pricing,cost,plan,subscription,rate",
			},
			{
				Question: "How do I reset my password?",
				Answer:   "You can reset your password by clicking 'Forgot Password' on the login page or visiting our password reset page.",
				Keywords: "password,reset,forgot,change,update",
			},
			{
				Question: "What payment methods do you accept?",
				Answer:   "We accept all major credit cards, PayPal, and bank transfers.",
				Keywords: "payment,pay,method,card,credit,debit",
			},
		}
		for _, faq := range faqs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO faqs (question, answer, keywords) VALUES (?, ?, ?)`,
				faq.Question, faq.Answer, faq.Keywords,
			); err != nil {
				return fmt.Errorf("insert faq: %w", err)
			}
		}
	}

	if userCount == 0 {
		users := []UserAccount{
			{Username: "john_doe", AccountNumber: "ACC001", Balance: 1250.50, Email: "john@example.com"},
			{Username: "jane_smith", AccountNumber: "ACC002", Balance: 3420.75, Email: "jane@example.com"},
			{Username: "demo_user", AccountNumber: "ACC003", Balance: 500.00, Email: "demo@example.com"},
		}
		for _, user := range users {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_accounts (username, account_number, balance, email) VALUES (?, ?, ?, ?)`,
				user.Username, user.AccountNumber, user.Balance, user.Email,
			); err != nil {
				return fmt.Errorf("insert user account: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListFAQs returns the full FAQ corpus.
func (s *SQLiteStore) ListFAQs(ctx context.Context) ([]FAQ, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, question, answer, keywords FROM faqs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query faqs: %w", err)
	}
	defer rows.Close()

	var faqs []FAQ
	for rows.Next() {
		var faq FAQ
		if err := rows.Scan(&faq.ID, &faq.Question, &faq.Answer, &faq.Keywords); err != nil {
			return nil, fmt.Errorf("scan faq row: %w", err)
		}
		faqs = append(faqs, faq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faq rows: %w", err)
	}
	return faqs, nil
}

// AccountByUsername returns the account for username, or nil when absent.
func (s *SQLiteStore) AccountByUsername(ctx context.Context, username string) (*UserAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, account_number, balance, email FROM user_accounts WHERE username = ?`,
		username,
	)

	var account UserAccount
	err := row.Scan(&account.ID, &account.Username, &account.AccountNumber, &account.Balance, &account.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user account row: %w", err)
	}
	return &account, nil
}

// Counts reports how many FAQs and user accounts exist.
func (s *SQLiteStore) Counts(ctx context.Context) (int64, int64, error) {
	var faqs, users int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM faqs`).Scan(&faqs); err != nil {
		return 0, 0, fmt.Errorf("count faqs: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_accounts`).Scan(&users); err != nil {
		return 0, 0, fmt.Errorf("count user accounts: %w", err)
	}
	return faqs, users, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
