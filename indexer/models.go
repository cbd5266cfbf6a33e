package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsernameEvent is one indexed UsernameSet notification.
type UsernameEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Address    string    `gorm:"size:42;index"`
	Username   []byte
	BlockHash  string `gorm:"size:66;uniqueIndex:idx_event_position"`
	Height     uint64 `gorm:"index"`
	TxHash     string `gorm:"size:66"`
	TxIndex    int    `gorm:"uniqueIndex:idx_event_position"`
	EventIndex int    `gorm:"uniqueIndex:idx_event_position"`
	BlockTime  time.Time
	CreatedAt  time.Time
}

// Cursor records the last block whose events were indexed.
type Cursor struct {
	Name      string `gorm:"primaryKey;size:64"`
	Height    uint64
	BlockHash string `gorm:"size:66"`
	UpdatedAt time.Time
}

const usernameCursor = "usernames"

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UsernameEvent{},
		&Cursor{},
	)
}
