//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	la "github.com/fjrd84/linkauth"
)

// AutoMigrate creates or updates the accounts table and its unique indexes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountModel{})
}

// AccountStore implements la.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// translateError maps driver errors onto the store sentinels. Drivers that
// do not translate errors themselves are matched on their messages.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return la.ErrAccountNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return la.ErrDuplicateIdentity
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") || strings.Contains(msg, "duplicate entry") {
		return la.ErrDuplicateIdentity
	}
	return err
}

func (s *AccountStore) GetAccount(ctx context.Context, id string) (*la.Account, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*la.Account, error) {
	return s.first(ctx, "local_email = ?", la.NormalizeEmail(email))
}

func (s *AccountStore) FindByProvider(ctx context.Context, provider la.Provider, externalID string) (*la.Account, error) {
	column := providerColumn(provider)
	if column == "" {
		return nil, la.ErrUnknownProvider
	}
	return s.first(ctx, column+" = ?", externalID)
}

func (s *AccountStore) first(ctx context.Context, query string, arg any) (*la.Account, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *la.Account) error {
	return translateError(s.db.WithContext(ctx).Create(AccountToModel(account)).Error)
}

// SaveAccount overwrites every column, so cleared credentials become NULL
// and release their unique index entries.
func (s *AccountStore) SaveAccount(ctx context.Context, account *la.Account) error {
	result := s.db.WithContext(ctx).
		Model(&AccountModel{}).
		Where("id = ?", account.ID).
		Select("*").
		Updates(AccountToModel(account))
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return la.ErrAccountNotFound
	}
	return nil
}
