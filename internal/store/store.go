// Package store persists the intent service's FAQ corpus and demo user
// accounts in SQLite.
package store

import "context"

// FAQ is one canned question/answer pair with comma-separated match keywords.
type FAQ struct {
	ID       int64
	Question string
	Answer   string
	Keywords string
}

// UserAccount is one demo account used by balance queries.
type UserAccount struct {
	ID            int64
	Username      string
	AccountNumber string
	Balance       float64
	Email         string
}

// Repository is the storage surface the API handlers depend on.
type Repository interface {
	Ping(ctx context.Context) error
	ListFAQs(ctx context.Context) ([]FAQ, error)
	AccountByUsername(ctx context.Context, username string) (*UserAccount, error)
	Counts(ctx context.Context) (faqs, users int64, err error)
	Close() error
}
