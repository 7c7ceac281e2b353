package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/eddiefleurent/open_interest/internal/models"
)

// ChainSnapshot is one cached option chain.
type ChainSnapshot struct {
	gorm.Model
	Symbol    string `gorm:"uniqueIndex:idx_symbol_date;size:16"`
	TradeDate string `gorm:"uniqueIndex:idx_symbol_date;size:10"`
	Records   int
	Payload   []byte
}

// SQLiteStorage implements Interface on a SQLite database through gorm.
type SQLiteStorage struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewSQLiteStorage opens (and migrates) the database at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&ChainSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &SQLiteStorage{db: db, logger: log}, nil
}

// WithLogger replaces the storage logger.
func (s *SQLiteStorage) WithLogger(l *logrus.Logger) *SQLiteStorage {
	if l != nil {
		s.logger = l
	}
	return s
}

// GetChain loads the snapshot for symbol and date.
func (s *SQLiteStorage) GetChain(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, bool, error) {
	sym, day, err := key(symbol, date)
	if err != nil {
		return nil, false, err
	}

	var snap ChainSnapshot
	err = s.db.WithContext(ctx).Where("symbol = ? AND trade_date = ?", sym, day).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load chain %s@%s: %w", sym, day, err)
	}

	var records []models.RawRecord
	if err := json.Unmarshal(snap.Payload, &records); err != nil {
		return nil, false, fmt.Errorf("corrupt chain %s@%s: %w", sym, day, err)
	}
	return records, true, nil
}

// SaveChain upserts the snapshot for symbol and date.
func (s *SQLiteStorage) SaveChain(ctx context.Context, symbol string, date time.Time, records []models.RawRecord) error {
	sym, day, err := key(symbol, date)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode chain: %w", err)
	}

	snap := ChainSnapshot{Symbol: sym, TradeDate: day, Records: len(records), Payload: payload}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "trade_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"records", "payload", "updated_at", "deleted_at"}),
	}).Create(&snap)
	if result.Error != nil {
		return fmt.Errorf("failed to save chain %s@%s: %w", sym, day, result.Error)
	}

	s.logger.WithFields(logrus.Fields{"symbol": sym, "date": day, "records": len(records)}).Debug("Saved chain snapshot")
	return nil
}

// Close releases the database.
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
