package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Account is one registered chat user.
type Account struct {
	ID        uint64 `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex; not null"`
	Secret    string `gorm:"not null"`
	CreatedAt time.Time
}

// SQLStore keeps accounts in a relational database through gorm.
type SQLStore struct {
	db *gorm.DB
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: gormlogger.Discard, TranslateError: true}
}

// NewSQLStore migrates the accounts table on db and returns a store using it.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&Account{}); err != nil {
		return nil, fmt.Errorf("credstore: migrate accounts: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("credstore: open sqlite %s: %w", path, err)
	}

	// SQLite allows one writer; a single connection queues writers in the
	// pool instead of failing them with SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return NewSQLStore(db)
}

// OpenPostgres connects to PostgreSQL using dsn.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("credstore: connect to postgres: %w", err)
	}

	return NewSQLStore(db)
}

// FindAccount returns the account named username, or nil if there is none.
func (s *SQLStore) FindAccount(ctx context.Context, username string) (*Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &account, nil
}

// Lookup implements Store.
func (s *SQLStore) Lookup(ctx context.Context, name string) (string, bool, error) {
	account, err := s.FindAccount(ctx, name)
	if err != nil {
		return "", false, fmt.Errorf("credstore: find %s: %w", name, err)
	}
	if account == nil || account.Secret == "" {
		return "", false, nil
	}

	return account.Secret, true, nil
}

// Insert implements Store. The unique index settles concurrent registrations
// of the same name.
func (s *SQLStore) Insert(ctx context.Context, name, secret string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Account{}).Where("username = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("credstore: count %s: %w", name, err)
		}
		if count > 0 {
			return ErrUserExists
		}

		err := tx.Create(&Account{Username: name, Secret: secret}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		if err != nil {
			return fmt.Errorf("credstore: create %s: %w", name, err)
		}
		return nil
	})
}

// Close implements Store.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
