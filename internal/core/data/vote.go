package data

import (
	"time"

	"gorm.io/gorm"
)

// Vote is one entry of the append-only vote ledger.
type Vote struct {
	ID        uint64 `gorm:"primaryKey"`
	AccountID uint64 `gorm:"index; not null"`
	GameID    int64  `gorm:"index:idx_vote_game_ply; not null"`
	Ply       int    `gorm:"index:idx_vote_game_ply"`
	Move      string `gorm:"size:8; not null"`
	CastAt    time.Time
}

func CreateVote(db *gorm.DB, vote *Vote) error {
	return db.Create(vote).Error
}

// FindVotesForPly returns every vote cast on gameID while ply was open.
func FindVotesForPly(db *gorm.DB, gameID int64, ply int) ([]Vote, error) {
	var votes []Vote
	err := db.Where("game_id = ? AND ply = ?", gameID, ply).Order("id").Find(&votes).Error
	return votes, err
}

// FindAccountVotes returns the ledger of one account in one game, oldest first.
func FindAccountVotes(db *gorm.DB, accountID uint64, gameID int64) ([]Vote, error) {
	var votes []Vote
	err := db.Where("account_id = ? AND game_id = ?", accountID, gameID).Order("id").Find(&votes).Error
	return votes, err
}
