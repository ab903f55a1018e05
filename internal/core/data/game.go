package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	GameStatusActive   = "ACTIVE"
	GameStatusFinished = "FINISHED"
)

// Game is the persisted form of a voted game. Moves holds the committed
// moves as space-separated UCI so an active game can be replayed on restart.
type Game struct {
	ID           int64 `gorm:"primaryKey; autoIncrement:false"`
	CreatorID    uint64
	Password     string
	StartTime    time.Time
	MoveInterval int
	Anonymous    bool
	LastMoveTime time.Time
	Moves        string
	Status       string `gorm:"index; not null"`
	Result       string
	PGN          string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TallySnapshot stores the vote counts a ply was committed with as JSON.
type TallySnapshot struct {
	ID     uint64 `gorm:"primaryKey"`
	GameID int64  `gorm:"uniqueIndex:idx_snapshot_game_ply; not null"`
	Ply    int    `gorm:"uniqueIndex:idx_snapshot_game_ply"`
	Counts string
}

func CreateGame(db *gorm.DB, game *Game) error {
	return db.Create(game).Error
}

// SaveGame updates every column of an existing Game.
func SaveGame(db *gorm.DB, game *Game) error {
	return db.Save(game).Error
}

// FindGame returns nil if there is no game with the given ID.
func FindGame(db *gorm.DB, id int64) (*Game, error) {
	var game Game
	err := db.First(&game, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &game, nil
}

func FindActiveGames(db *gorm.DB) ([]Game, error) {
	var games []Game
	err := db.Where("status = ?", GameStatusActive).Order("id").Find(&games).Error
	return games, err
}

func CreateTallySnapshot(db *gorm.DB, snapshot *TallySnapshot) error {
	return db.Create(snapshot).Error
}

// FindTallySnapshots returns the snapshots of gameID ordered by ply.
func FindTallySnapshots(db *gorm.DB, gameID int64) ([]TallySnapshot, error) {
	var snapshots []TallySnapshot
	err := db.Where("game_id = ?", gameID).Order("ply").Find(&snapshots).Error
	return snapshots, err
}
