package auth

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/dcrodman/crowdchess/internal/core/data"
)

func TestCreateAccount(t *testing.T) {
	type args struct {
		username string
		password string
	}
	tests := map[string]struct {
		dbFindFn   func(db *gorm.DB, username string) (*data.Account, error)
		dbCreateFn func(db *gorm.DB, account *data.Account) error
		args       args
		wantedErr  error
	}{
		"database_error": {
			dbFindFn:   func(db *gorm.DB, username string) (*data.Account, error) { return nil, nil },
			dbCreateFn: func(db *gorm.DB, account *data.Account) error { return fmt.Errorf("database error") },
			args:       args{username: "test", password: "test"},
			wantedErr:  fmt.Errorf("database error"),
		},
		"account_exists": {
			dbFindFn: func(db *gorm.DB, username string) (*data.Account, error) {
				return &data.Account{Username: username}, nil
			},
			dbCreateFn: func(db *gorm.DB, account *data.Account) error { return nil },
			args:       args{username: "test", password: "test"},
			wantedErr:  ErrAccountExists,
		},
		"blank_username": {
			dbFindFn:   func(db *gorm.DB, username string) (*data.Account, error) { return nil, nil },
			dbCreateFn: func(db *gorm.DB, account *data.Account) error { return nil },
			args:       args{username: "", password: "test"},
			wantedErr:  ErrInvalidUsername,
		},
		"happy_path": {
			dbFindFn:   func(db *gorm.DB, username string) (*data.Account, error) { return nil, nil },
			dbCreateFn: func(db *gorm.DB, account *data.Account) error { return nil },
			args:       args{username: "test", password: "secret"},
			wantedErr:  nil,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			originalFind, originalCreate := findUnscopedAccount, createAccount
			defer func() {
				findUnscopedAccount, createAccount = originalFind, originalCreate
			}()
			findUnscopedAccount, createAccount = tt.dbFindFn, tt.dbCreateFn

			account, err := CreateAccount(nil, tt.args.username, tt.args.password)
			if (err == nil) != (tt.wantedErr == nil) || (err != nil && err.Error() != tt.wantedErr.Error()) {
				t.Fatalf("expected error to = %v, got = %v", tt.wantedErr, err)
			}

			if err == nil {
				if account.Username != tt.args.username {
					t.Errorf("expected account username = %s, got = %s", tt.args.username, account.Username)
				}
				if account.Password != HashPassword(tt.args.password) {
					t.Error("expected account password to equal hashed password")
				}
			}
		})
	}
}

func TestHashPassword(t *testing.T) {
	password := "password"
	hashed := HashPassword(password)

	if password == hashed {
		t.Fatalf("expected hashed password not to equal password")
	}
	if len(hashed) != 64 {
		t.Errorf("expected a hex sha256 digest, got %q", hashed)
	}

	for i := 0; i < 10; i++ {
		if h := HashPassword(password); hashed != h {
			t.Fatalf("password hashing is non-deterministic (expected %s, got %s)", hashed, h)
		}
	}
}

func TestVerifyAccount(t *testing.T) {
	type context struct {
		account *data.Account
		err     error
	}
	type args struct {
		username string
		password string
	}
	type expected struct {
		account *data.Account
		err     error
	}

	happyPathAccount := &data.Account{Username: "test", Password: HashPassword("test")}

	tests := map[string]struct {
		context context
		args    args
		result  expected
	}{
		"database_error": {
			context{account: nil, err: fmt.Errorf("something exploded")},
			args{username: "test", password: "test"},
			expected{account: nil, err: ErrUnknown},
		},
		"no_account": {
			context{account: nil, err: nil},
			args{username: "test", password: "test"},
			expected{account: nil, err: ErrInvalidCredentials},
		},
		"invalid_password": {
			context{account: &data.Account{Username: "test", Password: "x"}, err: nil},
			args{username: "test", password: "test"},
			expected{account: nil, err: ErrInvalidCredentials},
		},
		"banned": {
			context{account: &data.Account{Username: "test", Password: HashPassword("test"), Banned: true}, err: nil},
			args{username: "test", password: "test"},
			expected{account: nil, err: ErrAccountBanned},
		},
		"happy": {
			context{account: happyPathAccount, err: nil},
			args{username: "test", password: "test"},
			expected{account: happyPathAccount, err: nil},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			originalFindAccount := findAccount
			defer func() { findAccount = originalFindAccount }()

			findAccount = func(db *gorm.DB, username string) (*data.Account, error) {
				return tt.context.account, tt.context.err
			}

			account, err := VerifyAccount(nil, tt.args.username, tt.args.password)
			if err != tt.result.err {
				t.Errorf("expected wantedErr = %s, got = %s", tt.result.err, err)
			}
			if account != tt.result.account {
				t.Errorf("expected account = %v, got = %v", tt.result.account, account)
			}
		})
	}
}

func TestDeleteAccount(t *testing.T) {
	existing := &data.Account{ID: 3, Username: "test"}
	tests := map[string]struct {
		found         *data.Account
		permanent     bool
		wantedErr     error
		wantSoft      bool
		wantPermanent bool
	}{
		"missing": {found: nil, wantedErr: ErrNoSuchAccount},
		"soft":    {found: existing, wantSoft: true},
		"permanent": {
			found:         existing,
			permanent:     true,
			wantPermanent: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			originalFind, originalSoft, originalPermanent := findUnscopedAccount, softDeleteAccount, permanentlyDeleteAccount
			defer func() {
				findUnscopedAccount, softDeleteAccount, permanentlyDeleteAccount = originalFind, originalSoft, originalPermanent
			}()

			var soft, permanent bool
			findUnscopedAccount = func(db *gorm.DB, username string) (*data.Account, error) { return tt.found, nil }
			softDeleteAccount = func(db *gorm.DB, account *data.Account) error { soft = true; return nil }
			permanentlyDeleteAccount = func(db *gorm.DB, account *data.Account) error { permanent = true; return nil }

			if err := DeleteAccount(nil, "test", tt.permanent); !errors.Is(err, tt.wantedErr) {
				t.Fatalf("expected error to = %v, got = %v", tt.wantedErr, err)
			}
			if soft != tt.wantSoft || permanent != tt.wantPermanent {
				t.Errorf("expected soft = %v permanent = %v, got soft = %v permanent = %v",
					tt.wantSoft, tt.wantPermanent, soft, permanent)
			}
		})
	}
}
