// Package auth implements credential checks on top of the account tables.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/dcrodman/crowdchess/internal/core/data"
)

var (
	ErrUnknown            = errors.New("an unexpected error occurred, please contact your server administrator")
	ErrInvalidCredentials = errors.New("username/password combination not found")
	ErrAccountBanned      = errors.New("this account has been suspended")
	ErrAccountExists      = errors.New("an account with this username already exists")
	ErrNoSuchAccount      = errors.New("no such account")
	ErrInvalidUsername    = errors.New("usernames may not be blank or contain spaces")
)

// Database seams, swapped out in tests.
var (
	findAccount              = data.FindAccountByUsername
	findUnscopedAccount      = data.FindUnscopedAccount
	createAccount            = data.CreateAccount
	softDeleteAccount        = data.DeleteAccount
	permanentlyDeleteAccount = data.PermanentlyDeleteAccount
)

// VerifyAccount checks the Accounts table for the specified credentials
// combination and validates that the account is accessible.
func VerifyAccount(db *gorm.DB, username, password string) (*data.Account, error) {
	account, err := findAccount(db, username)
	if err != nil {
		return nil, ErrUnknown
	}

	if account == nil || account.Password != HashPassword(password) {
		return nil, ErrInvalidCredentials
	} else if account.Banned {
		return nil, ErrAccountBanned
	}

	return account, nil
}

// CreateAccount takes the specified credentials and creates a new record in
// the database. Names of deleted accounts are not reused.
func CreateAccount(db *gorm.DB, username, password string) (*data.Account, error) {
	if username == "" || strings.ContainsAny(username, " \t\r\n") {
		return nil, ErrInvalidUsername
	}

	existing, err := findUnscopedAccount(db, username)
	if err != nil {
		return nil, fmt.Errorf("error looking up account: %w", err)
	} else if existing != nil {
		return nil, ErrAccountExists
	}

	account := &data.Account{
		Username: username,
		Password: HashPassword(password),
	}
	if err := createAccount(db, account); err != nil {
		return nil, err
	}

	return account, nil
}

// DeleteAccount soft-deletes the account with username, or removes it and its
// ledger entirely if permanent is set.
func DeleteAccount(db *gorm.DB, username string, permanent bool) error {
	account, err := findUnscopedAccount(db, username)
	if err != nil {
		return fmt.Errorf("error looking up account: %w", err)
	} else if account == nil {
		return ErrNoSuchAccount
	}

	if permanent {
		return permanentlyDeleteAccount(db, account)
	}
	return softDeleteAccount(db, account)
}

// HashPassword returns the hex encoded sha256 digest of password.
func HashPassword(password string) string {
	hash := sha256.Sum256([]byte(password))
	return hex.EncodeToString(hash[:])
}
