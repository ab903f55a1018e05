package data

import (
	"errors"

	"gorm.io/gorm"
)

// Membership records which side of a game an account votes for. An account
// belongs to at most one side of any game.
type Membership struct {
	ID        uint64 `gorm:"primaryKey"`
	AccountID uint64 `gorm:"uniqueIndex:idx_membership_account_game; not null"`
	GameID    int64  `gorm:"uniqueIndex:idx_membership_account_game; index; not null"`
	Color     string `gorm:"size:1; not null"`
}

func CreateMembership(db *gorm.DB, membership *Membership) error {
	return db.Create(membership).Error
}

// FindMembership returns nil if accountID has not joined gameID.
func FindMembership(db *gorm.DB, accountID uint64, gameID int64) (*Membership, error) {
	var membership Membership
	err := db.Where("account_id = ? AND game_id = ?", accountID, gameID).First(&membership).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &membership, nil
}

func FindMembershipsByGame(db *gorm.DB, gameID int64) ([]Membership, error) {
	var memberships []Membership
	err := db.Where("game_id = ?", gameID).Order("account_id").Find(&memberships).Error
	return memberships, err
}

// FindActiveGameIDs lists the unfinished games accountID has joined.
func FindActiveGameIDs(db *gorm.DB, accountID uint64) ([]int64, error) {
	var ids []int64
	err := db.Model(&Membership{}).
		Joins("JOIN games ON games.id = memberships.game_id").
		Where("memberships.account_id = ? AND games.status = ?", accountID, GameStatusActive).
		Order("memberships.game_id").
		Pluck("memberships.game_id", &ids).Error
	return ids, err
}
