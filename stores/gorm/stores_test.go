package gorm_test

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	la "github.com/fjrd84/linkauth"
	gormstore "github.com/fjrd84/linkauth/stores/gorm"
	"github.com/fjrd84/linkauth/stores/storetest"
)

var dbSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:linkauth_test_%d?mode=memory&cache=shared&_busy_timeout=5000", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, gormstore.AutoMigrate(db))
	return db
}

func TestAccountStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) la.AccountStore {
		return gormstore.NewAccountStore(openTestDB(t))
	})
}

func TestModelRoundTrip(t *testing.T) {
	acct := &la.Account{
		ID:       "acc-1",
		Facebook: &la.ProviderProfile{ExternalID: "fb-1", DisplayName: "Ada Lovelace", Email: "ada@example.com"},
	}
	model := gormstore.AccountToModel(acct)
	require.Nil(t, model.LocalEmail)
	require.NotNil(t, model.FacebookID)

	back := model.ToAccount()
	require.Nil(t, back.Local)
	require.Nil(t, back.Google)
	require.Equal(t, *acct.Facebook, *back.Facebook)
	require.False(t, back.Facebook.Active())
}
