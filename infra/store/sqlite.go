// Package store persists merchant gateway accounts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/provider"
)

// ErrAccountNotFound is returned when no account is stored for a
// merchant and gateway.
var ErrAccountNotFound = errors.New("account not found")

// accountRecord is the stored form of a provider.Account. Unlike the
// account's JSON form it carries the secrets.
type accountRecord struct {
	MerchantID     string                   `json:"merchant_id"`
	TerminalID     string                   `json:"terminal_id,omitempty"`
	CustomerID     string                   `json:"customer_id,omitempty"`
	Username       string                   `json:"username,omitempty"`
	Password       string                   `json:"password,omitempty"`
	StoreKey       string                   `json:"store_key,omitempty"`
	RefundUsername string                   `json:"refund_username,omitempty"`
	RefundPassword string                   `json:"refund_password,omitempty"`
	Models         []provider.SecurityModel `json:"models"`
	Lang           string                   `json:"lang,omitempty"`
	TestMode       bool                     `json:"test_mode"`
	APIURL         string                   `json:"api_url,omitempty"`
	GatewayURL     string                   `json:"gateway_url,omitempty"`
	QueryURL       string                   `json:"query_url,omitempty"`
}

func recordOf(acc *provider.Account) accountRecord {
	return accountRecord{
		MerchantID:     acc.MerchantID,
		TerminalID:     acc.TerminalID,
		CustomerID:     acc.CustomerID,
		Username:       acc.Username,
		Password:       acc.Password,
		StoreKey:       acc.StoreKey,
		RefundUsername: acc.RefundUsername,
		RefundPassword: acc.RefundPassword,
		Models:         acc.Models,
		Lang:           acc.Lang,
		TestMode:       acc.TestMode,
		APIURL:         acc.APIURL,
		GatewayURL:     acc.GatewayURL,
		QueryURL:       acc.QueryURL,
	}
}

func (r accountRecord) account(gateway string) *provider.Account {
	return &provider.Account{
		Gateway:        gateway,
		MerchantID:     r.MerchantID,
		TerminalID:     r.TerminalID,
		CustomerID:     r.CustomerID,
		Username:       r.Username,
		Password:       r.Password,
		StoreKey:       r.StoreKey,
		RefundUsername: r.RefundUsername,
		RefundPassword: r.RefundPassword,
		Models:         r.Models,
		Lang:           r.Lang,
		TestMode:       r.TestMode,
		APIURL:         r.APIURL,
		GatewayURL:     r.GatewayURL,
		QueryURL:       r.QueryURL,
	}
}

// SQLiteAccountStore keeps merchant accounts in a SQLite database shared
// by every replica on the host.
type SQLiteAccountStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// retryOperation retries operations failing with SQLITE_BUSY.
func (s *SQLiteAccountStore) retryOperation(ctx context.Context, operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "SQLITE_BUSY") && !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		if attempt < maxRetries {
			// 10ms, 20ms, 40ms, 80ms
			backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
			logger.Debug(fmt.Sprintf("SQLite busy, retrying in %v (attempt %d/%d)", backoff, attempt+1, maxRetries+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

// NewSQLiteAccountStore opens (or creates) the database at dbPath.
func NewSQLiteAccountStore(dbPath string) (*SQLiteAccountStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	s := &SQLiteAccountStore{db: db, path: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite account store initialized", logger.LogContext{Fields: map[string]any{"path": dbPath}})
	return s, nil
}

func (s *SQLiteAccountStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS merchant_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		merchant_key TEXT NOT NULL,
		gateway TEXT NOT NULL,
		account_data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(merchant_key, gateway)
	);

	CREATE INDEX IF NOT EXISTS idx_merchant_gateway ON merchant_accounts(merchant_key, gateway);
	`
	_, err := s.db.Exec(query)
	return err
}

// SaveAccount inserts or replaces the merchant's account for acc.Gateway.
func (s *SQLiteAccountStore) SaveAccount(ctx context.Context, merchantKey string, acc *provider.Account) error {
	if merchantKey == "" || acc == nil || acc.Gateway == "" {
		return &provider.ValidationError{Field: "account", Reason: "merchant key and gateway are required"}
	}
	data, err := json.Marshal(recordOf(acc))
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(ctx, func() error {
		query := `
		INSERT INTO merchant_accounts (merchant_key, gateway, account_data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(merchant_key, gateway)
		DO UPDATE SET
			account_data = excluded.account_data,
			updated_at = CURRENT_TIMESTAMP
		`
		if _, err := s.db.ExecContext(ctx, query, merchantKey, acc.Gateway, string(data)); err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}
		return nil
	}, 3)
}

// Account loads the merchant's account for gateway.
func (s *SQLiteAccountStore) Account(ctx context.Context, merchantKey, gateway string) (*provider.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var acc *provider.Account
	err := s.retryOperation(ctx, func() error {
		var data string
		err := s.db.QueryRowContext(ctx,
			`SELECT account_data FROM merchant_accounts WHERE merchant_key = ? AND gateway = ?`,
			merchantKey, gateway).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: merchant %s, gateway %s", ErrAccountNotFound, merchantKey, gateway)
		}
		if err != nil {
			return fmt.Errorf("failed to load account: %w", err)
		}

		var rec accountRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return fmt.Errorf("failed to unmarshal account: %w", err)
		}
		acc = rec.account(gateway)
		return nil
	}, 3)
	return acc, err
}

// DeleteAccount removes the merchant's account for gateway.
func (s *SQLiteAccountStore) DeleteAccount(ctx context.Context, merchantKey, gateway string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(ctx, func() error {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM merchant_accounts WHERE merchant_key = ? AND gateway = ?`, merchantKey, gateway)
		if err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: merchant %s, gateway %s", ErrAccountNotFound, merchantKey, gateway)
		}
		return nil
	}, 3)
}

// Gateways lists the gateways the merchant has accounts for.
func (s *SQLiteAccountStore) Gateways(ctx context.Context, merchantKey string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT gateway FROM merchant_accounts WHERE merchant_key = ? ORDER BY gateway`, merchantKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query gateways: %w", err)
	}
	defer rows.Close()

	var gateways []string
	for rows.Next() {
		var gw string
		if err := rows.Scan(&gw); err != nil {
			return nil, fmt.Errorf("failed to scan gateway: %w", err)
		}
		gateways = append(gateways, gw)
	}
	return gateways, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteAccountStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Stats returns row counts and the database file size.
func (s *SQLiteAccountStore) Stats(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]any)

	var total, merchants int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM merchant_accounts").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT merchant_key) FROM merchant_accounts").Scan(&merchants); err != nil {
		return nil, fmt.Errorf("failed to count merchants: %w", err)
	}
	stats["total_accounts"] = total
	stats["unique_merchants"] = merchants

	if info, err := os.Stat(s.path); err == nil {
		stats["db_size_bytes"] = info.Size()
	}
	stats["db_path"] = s.path
	return stats, nil
}
