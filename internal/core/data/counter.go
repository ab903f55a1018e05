package data

import (
	"errors"

	"gorm.io/gorm"
)

const NextGameIDCounter = "next_game_id"

// Counter is a named, persisted sequence.
type Counter struct {
	Name  string `gorm:"primaryKey"`
	Value int64
}

// NextValue returns the current value of the named counter and advances it.
// A counter that does not exist yet starts at start.
func NextValue(db *gorm.DB, name string, start int64) (int64, error) {
	var value int64
	err := db.Transaction(func(tx *gorm.DB) error {
		counter := Counter{Name: name}
		err := tx.First(&counter, "name = ?", name).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			counter.Value = start
			if err := tx.Create(&counter).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		value = counter.Value
		return tx.Model(&counter).Update("value", counter.Value+1).Error
	})
	return value, err
}
