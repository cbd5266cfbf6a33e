package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"namechain/core"
	"namechain/core/events"
	"namechain/core/registry"
	"namechain/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Open connects to the index database.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("indexer: sqlite dsn required")
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return db, nil
}

// Indexer mirrors committed UsernameSet events into a SQL table so that the
// change history of an address can be queried.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New migrates db and returns an indexer writing to it.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: db required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: logger}, nil
}

// IndexBlock stores the UsernameSet events of block. Re-indexing a block is
// a no-op.
func (ix *Indexer) IndexBlock(ctx context.Context, hash common.Hash, block *types.Block) error {
	if block == nil || block.Header == nil {
		return fmt.Errorf("indexer: nil block")
	}
	blockTime := time.Unix(int64(block.Header.Timestamp), 0).UTC()
	var rows []UsernameEvent
	for txIndex, receipt := range block.Receipts {
		if receipt == nil {
			continue
		}
		for i, evt := range receipt.Events {
			parsed, ok := events.ParseUsernameSet(evt)
			if !ok {
				continue
			}
			rows = append(rows, UsernameEvent{
				ID:         uuid.New(),
				Address:    registry.IdentityKey(parsed.Address).String(),
				Username:   parsed.Username,
				BlockHash:  hash.Hex(),
				Height:     block.Header.Height,
				TxHash:     receipt.TxHash.Hex(),
				TxIndex:    txIndex,
				EventIndex: i,
				BlockTime:  blockTime,
			})
		}
	}
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
				return fmt.Errorf("indexer: insert events: %w", err)
			}
		}
		cursor := Cursor{Name: usernameCursor, Height: block.Header.Height, BlockHash: hash.Hex()}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&cursor).Error
	})
}

// Listener adapts the indexer to core block notifications. Failures are
// logged; Backfill repairs gaps on the next start.
func (ix *Indexer) Listener() core.BlockListener {
	return func(hash common.Hash, block *types.Block) {
		if err := ix.IndexBlock(context.Background(), hash, block); err != nil {
			ix.logger.Error("index block failed",
				slog.Uint64("height", block.Header.Height),
				slog.String("block", hash.Hex()),
				slog.Any("error", err))
		}
	}
}

// LastIndexed returns the height of the last indexed block.
func (ix *Indexer) LastIndexed(ctx context.Context) (uint64, bool, error) {
	var cursor Cursor
	err := ix.db.WithContext(ctx).First(&cursor, "name = ?", usernameCursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cursor.Height, true, nil
}

// Backfill indexes every committed block after the cursor up to the tip.
func (ix *Indexer) Backfill(ctx context.Context, chain *core.Blockchain) error {
	last, ok, err := ix.LastIndexed(ctx)
	if err != nil {
		return err
	}
	next := uint64(0)
	if ok {
		next = last + 1
	}
	tip := chain.GetHeight()
	for height := next; height <= tip; height++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		hash, err := chain.GetBlockHash(height)
		if err != nil {
			return err
		}
		block, err := chain.GetBlockByHash(hash)
		if err != nil {
			return err
		}
		if err := ix.IndexBlock(ctx, hash, block); err != nil {
			return err
		}
	}
	if tip >= next {
		ix.logger.Info("indexer caught up", slog.Uint64("from", next), slog.Uint64("to", tip))
	}
	return nil
}

// HistoryEntry is one past assignment of a username.
type HistoryEntry struct {
	Address   string        `json:"ethereumAddress"`
	Username  hexutil.Bytes `json:"username"`
	BlockHash string        `json:"blockHash"`
	Height    uint64        `json:"height"`
	TxHash    string        `json:"txHash"`
	Timestamp int64         `json:"timestamp"`
}

// History returns the most recent UsernameSet events for key, newest first.
func (ix *Indexer) History(ctx context.Context, key registry.IdentityKey, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	var rows []UsernameEvent
	err := ix.db.WithContext(ctx).
		Where("address = ?", key.String()).
		Order("height DESC").
		Order("tx_index DESC").
		Order("event_index DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: history: %w", err)
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, HistoryEntry{
			Address:   row.Address,
			Username:  row.Username,
			BlockHash: row.BlockHash,
			Height:    row.Height,
			TxHash:    row.TxHash,
			Timestamp: row.BlockTime.Unix(),
		})
	}
	return out, nil
}
