//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based linkauth.AccountStore.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and is suitable for deployments running several broker instances.
//
// # Database Schema
//
// AutoMigrate creates a single accounts table. The local email and each
// provider's external id are nullable columns with unique indexes, so the
// uniqueness of identities holds even across processes.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	_ = gormstore.AutoMigrate(db)
//	store := gormstore.NewAccountStore(db)
package gorm
