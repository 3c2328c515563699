package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/tradeguard/types"
)

// Database is a durable mirror of submitted trades. The gateway's
// in-memory counters stay authoritative; this is operator bookkeeping
// that survives restarts. Write failures are logged, never escalated.
type Database struct {
	db *gorm.DB
}

// SubmittedTrade is one persisted trade row.
type SubmittedTrade struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"`
	TxRef       string          `gorm:"index"`
	Destination string          `gorm:"index"`
	ValueNative decimal.Decimal `gorm:"type:decimal(30,18)"`
	GasLimit    uint64
	Status      string
	RiskScore   int
	SubmittedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New opens a postgres database when the path carries a postgres DSN,
// otherwise a local sqlite file.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&SubmittedTrade{}); err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// SaveTrade persists a submitted trade. The caller treats failure as
// bookkeeping noise; the trade outcome is already fixed.
func (d *Database) SaveTrade(result types.TradeResult) error {
	row := SubmittedTrade{
		TxRef:       result.TxRef,
		Destination: result.Destination,
		ValueNative: result.ValueNative,
		GasLimit:    result.GasLimit,
		Status:      string(result.Status),
		SubmittedAt: result.Timestamp,
	}
	if result.Decision != nil {
		row.RiskScore = result.Decision.RiskScore
	}
	return d.db.Create(&row).Error
}

// UpdateStatus records a follow-up confirmation result.
func (d *Database) UpdateStatus(txRef string, status types.TxStatus) error {
	return d.db.Model(&SubmittedTrade{}).
		Where("tx_ref = ?", txRef).
		Update("status", string(status)).Error
}

// RecentTrades returns the newest persisted trades.
func (d *Database) RecentTrades(limit int) ([]SubmittedTrade, error) {
	var rows []SubmittedTrade
	err := d.db.Order("submitted_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
