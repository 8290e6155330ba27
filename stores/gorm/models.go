//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	la "github.com/fjrd84/linkauth"
)

// AccountModel is the GORM model for accounts. Identity columns are
// nullable with unique indexes, so the database itself refuses a second
// account for the same email or external id.
type AccountModel struct {
	ID string `gorm:"primaryKey;size:64"`

	LocalEmail          *string `gorm:"size:320;uniqueIndex:idx_accounts_local_email"`
	LocalPasswordDigest string  `gorm:"size:128"`

	FacebookID          *string `gorm:"size:128;uniqueIndex:idx_accounts_facebook_id"`
	FacebookToken       string  `gorm:"type:text"`
	FacebookDisplayName string  `gorm:"size:255"`
	FacebookEmail       string  `gorm:"size:320"`

	TwitterID          *string `gorm:"size:128;uniqueIndex:idx_accounts_twitter_id"`
	TwitterToken       string  `gorm:"type:text"`
	TwitterDisplayName string  `gorm:"size:255"`
	TwitterEmail       string  `gorm:"size:320"`
	TwitterUsername    string  `gorm:"size:64"`

	GoogleID          *string `gorm:"size:128;uniqueIndex:idx_accounts_google_id"`
	GoogleToken       string  `gorm:"type:text"`
	GoogleDisplayName string  `gorm:"size:255"`
	GoogleEmail       string  `gorm:"size:320"`

	Token     string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (AccountModel) TableName() string {
	return "accounts"
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// providerColumn names the external id column for a provider.
func providerColumn(p la.Provider) string {
	switch p {
	case la.ProviderFacebook:
		return "facebook_id"
	case la.ProviderTwitter:
		return "twitter_id"
	case la.ProviderGoogle:
		return "google_id"
	}
	return ""
}

func (m *AccountModel) ToAccount() *la.Account {
	acct := &la.Account{
		ID:        m.ID,
		Token:     m.Token,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.LocalEmail != nil {
		acct.Local = &la.LocalCredential{Email: *m.LocalEmail, PasswordDigest: m.LocalPasswordDigest}
	}
	if m.FacebookID != nil {
		acct.Facebook = &la.ProviderProfile{
			ExternalID:  *m.FacebookID,
			AccessToken: m.FacebookToken,
			DisplayName: m.FacebookDisplayName,
			Email:       m.FacebookEmail,
		}
	}
	if m.TwitterID != nil {
		acct.Twitter = &la.ProviderProfile{
			ExternalID:  *m.TwitterID,
			AccessToken: m.TwitterToken,
			DisplayName: m.TwitterDisplayName,
			Email:       m.TwitterEmail,
			Username:    m.TwitterUsername,
		}
	}
	if m.GoogleID != nil {
		acct.Google = &la.ProviderProfile{
			ExternalID:  *m.GoogleID,
			AccessToken: m.GoogleToken,
			DisplayName: m.GoogleDisplayName,
			Email:       m.GoogleEmail,
		}
	}
	return acct
}

func AccountToModel(a *la.Account) *AccountModel {
	m := &AccountModel{
		ID:        a.ID,
		Token:     a.Token,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Local != nil {
		m.LocalEmail = strPtr(a.Local.Email)
		m.LocalPasswordDigest = a.Local.PasswordDigest
	}
	if p := a.Facebook; p != nil {
		m.FacebookID = strPtr(p.ExternalID)
		m.FacebookToken = p.AccessToken
		m.FacebookDisplayName = p.DisplayName
		m.FacebookEmail = p.Email
	}
	if p := a.Twitter; p != nil {
		m.TwitterID = strPtr(p.ExternalID)
		m.TwitterToken = p.AccessToken
		m.TwitterDisplayName = p.DisplayName
		m.TwitterEmail = p.Email
		m.TwitterUsername = p.Username
	}
	if p := a.Google; p != nil {
		m.GoogleID = strPtr(p.ExternalID)
		m.GoogleToken = p.AccessToken
		m.GoogleDisplayName = p.DisplayName
		m.GoogleEmail = p.Email
	}
	return m
}
