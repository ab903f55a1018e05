package account

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-test/deep"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dcrodman/crowdchess/internal/core/data"
	"github.com/dcrodman/crowdchess/internal/rules"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("error initializing test database: %s", err)
	}
	if err := db.AutoMigrate(data.Models()...); err != nil {
		t.Fatalf("error auto migrating db: %s", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewStore(db, log)
}

func TestStore_RegisterAndAuthenticate(t *testing.T) {
	s := newTestStore(t)

	alice, err := s.Register("alice", "pw")
	if err != nil {
		t.Fatalf("Register() returned an unexpected error: %v", err)
	}
	if _, err := s.Register("alice", "other"); !errors.Is(err, ErrAccountExists) {
		t.Errorf("expected ErrAccountExists, got %v", err)
	}
	if _, err := s.Register("bad name", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for a name with a space, got %v", err)
	}

	tests := map[string]struct {
		login   string
		secret  string
		want    *Account
		wantErr error
	}{
		"valid":          {login: "alice", secret: "pw", want: alice},
		"wrong_password": {login: "alice", secret: "nope", wantErr: ErrInvalidCredentials},
		"unknown_login":  {login: "bob", secret: "pw", wantErr: ErrInvalidCredentials},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := s.Authenticate(tt.login, tt.secret)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate() want error = %v, got = %v", tt.wantErr, err)
			}
			if diff := deep.Equal(tt.want, got); diff != nil {
				t.Errorf("Authenticate() returned the wrong account: %v", diff)
			}
		})
	}
}

func TestStore_Banned(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Register("carol", "pw")
	if err := s.DB.Model(&data.Account{}).Where("id = ?", a.ID).Update("banned", true).Error; err != nil {
		t.Fatalf("error banning account: %v", err)
	}
	if _, err := s.Authenticate("carol", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected a banned account to be rejected, got %v", err)
	}
}

func TestStore_Membership(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.ColorOf(1, 5); ok || err != nil {
		t.Fatalf("ColorOf() for a non-member want = false, nil; got = %v, %v", ok, err)
	}
	if err := s.RecordMembership(1, 5, rules.Black); err != nil {
		t.Fatalf("RecordMembership() returned an unexpected error: %v", err)
	}
	if err := s.RecordMembership(1, 5, rules.White); err == nil {
		t.Errorf("expected a second membership to be rejected")
	}

	color, ok, err := s.ColorOf(1, 5)
	if err != nil || !ok || color != rules.Black {
		t.Errorf("ColorOf() want = black, got = %v %v %v", color, ok, err)
	}

	// A fresh cache falls back to the database.
	s.colors = newColorCache()
	color, ok, _ = s.ColorOf(1, 5)
	if !ok || color != rules.Black {
		t.Errorf("ColorOf() from the database want = black, got = %v %v", color, ok)
	}
	if s.colors.Len() != 1 {
		t.Errorf("expected the lookup to be cached")
	}

	_ = s.RecordMembership(2, 5, rules.White)
	members, err := s.Members(5)
	if err != nil {
		t.Fatalf("Members() returned an unexpected error: %v", err)
	}
	if diff := deep.Equal(map[uint64]rules.Color{1: rules.Black, 2: rules.White}, members); diff != nil {
		t.Errorf("Members() did not match: %v", diff)
	}

	s.ForgetGame(5)
	if s.colors.Len() != 0 {
		t.Errorf("expected ForgetGame() to empty the cache, %d left", s.colors.Len())
	}
}

func TestStore_LedgerAndActiveGames(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	for _, g := range []*data.Game{{ID: 1, Status: data.GameStatusActive}, {ID: 2, Status: data.GameStatusFinished}} {
		if err := data.CreateGame(s.DB, g); err != nil {
			t.Fatalf("error creating game: %v", err)
		}
	}
	_ = s.RecordMembership(1, 1, rules.White)
	_ = s.RecordMembership(1, 2, rules.White)

	ids, err := s.ActiveGames(1)
	if err != nil {
		t.Fatalf("ActiveGames() returned an unexpected error: %v", err)
	}
	if diff := deep.Equal([]int64{1}, ids); diff != nil {
		t.Errorf("ActiveGames() did not match: %v", diff)
	}

	_ = s.RecordVote(1, 1, 0, "e2e4", at)
	_ = s.RecordVote(1, 1, 0, "e2e4", at)
	_ = s.RecordVote(1, 1, 2, "g1f3", at)

	ledger, err := s.Ledger(1, 1)
	if err != nil {
		t.Fatalf("Ledger() returned an unexpected error: %v", err)
	}
	var plies []int
	for _, e := range ledger {
		plies = append(plies, e.Ply)
	}
	if diff := deep.Equal([]int{0, 0, 2}, plies); diff != nil {
		t.Errorf("Ledger() did not match: %v", diff)
	}
}
