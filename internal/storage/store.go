package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"neurogallery/server/internal/config"
	"neurogallery/server/internal/models"
)

// Records are stored as JSON documents keyed by id, one table per
// collection. Full-record replacement only; no partial updates.

type modelRecord struct {
	ID        string `gorm:"primaryKey;size:191"`
	Doc       []byte
	UpdatedAt time.Time
}

func (modelRecord) TableName() string { return "models" }

type combinationRecord struct {
	ID        string `gorm:"primaryKey;size:191"`
	Doc       []byte
	UpdatedAt time.Time
}

func (combinationRecord) TableName() string { return "combinations" }

type schemaMeta struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string
}

func (schemaMeta) TableName() string { return "schema_meta" }

const schemaVersion = "1"

// Store is the durable home of the two record collections.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and runs the idempotent schema
// migration. Existing records in other tables are never touched.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.MySQL.Username,
			cfg.MySQL.Password,
			cfg.MySQL.Host,
			cfg.MySQL.Port,
			cfg.MySQL.Database,
		)
		dialector = mysql.Open(dsn)
	case "sqlite", "":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "mysql" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&modelRecord{}, &combinationRecord{}, &schemaMeta{}); err != nil {
		return nil, err
	}

	version := schemaMeta{Key: "schema_version", Value: schemaVersion}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&version).Error; err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a single transaction.
func (s *Store) WithTx(fn func(*gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// Initialize loads the persisted state, seeding the fixed sample dataset
// first when both collections are empty. The seed is written atomically and
// returned verbatim.
func (s *Store) Initialize(ctx context.Context) (models.AppState, error) {
	var modelCount, comboCount int64
	if err := s.db.WithContext(ctx).Model(&modelRecord{}).Count(&modelCount).Error; err != nil {
		return models.AppState{}, fmt.Errorf("failed to count models: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&combinationRecord{}).Count(&comboCount).Error; err != nil {
		return models.AppState{}, fmt.Errorf("failed to count combinations: %w", err)
	}

	if modelCount == 0 && comboCount == 0 {
		seed := models.SeedState()
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, m := range seed.Models {
				rec, err := encodeModel(m)
				if err != nil {
					return err
				}
				if err := tx.Create(&rec).Error; err != nil {
					return err
				}
			}
			for _, c := range seed.Combinations {
				rec, err := encodeCombination(c)
				if err != nil {
					return err
				}
				if err := tx.Create(&rec).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return models.AppState{}, fmt.Errorf("failed to seed library: %w", err)
		}
		return seed, nil
	}

	state := models.AppState{}

	var modelRecs []modelRecord
	if err := s.db.WithContext(ctx).Order("updated_at desc").Find(&modelRecs).Error; err != nil {
		return models.AppState{}, fmt.Errorf("failed to load models: %w", err)
	}
	for _, rec := range modelRecs {
		var m models.Model
		if err := json.Unmarshal(rec.Doc, &m); err != nil {
			// Corrupt row, skip it rather than failing the whole load
			log.Printf("[Store] Skipping unreadable model record %s: %v", rec.ID, err)
			continue
		}
		state.Models = append(state.Models, m)
	}

	var comboRecs []combinationRecord
	if err := s.db.WithContext(ctx).Order("updated_at desc").Find(&comboRecs).Error; err != nil {
		return models.AppState{}, fmt.Errorf("failed to load combinations: %w", err)
	}
	for _, rec := range comboRecs {
		var c models.Combination
		if err := json.Unmarshal(rec.Doc, &c); err != nil {
			log.Printf("[Store] Skipping unreadable combination record %s: %v", rec.ID, err)
			continue
		}
		state.Combinations = append(state.Combinations, c)
	}

	return state, nil
}

// PutModel inserts or fully replaces the record with this id.
func (s *Store) PutModel(ctx context.Context, m models.Model) error {
	rec, err := encodeModel(m)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

// PutModels writes all given models in one transaction. Either every record
// commits or none do.
func (s *Store) PutModels(ctx context.Context, ms []models.Model) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range ms {
			rec, err := encodeModel(m)
			if err != nil {
				return err
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteModel removes the record. Deleting a missing id is a no-op success.
func (s *Store) DeleteModel(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&modelRecord{}, "id = ?", id).Error
}

// PutCombination inserts or fully replaces the record with this id.
func (s *Store) PutCombination(ctx context.Context, c models.Combination) error {
	rec, err := encodeCombination(c)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

// DeleteCombination removes the record. Deleting a missing id is a no-op
// success.
func (s *Store) DeleteCombination(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&combinationRecord{}, "id = ?", id).Error
}

func encodeModel(m models.Model) (modelRecord, error) {
	doc, err := json.Marshal(m)
	if err != nil {
		return modelRecord{}, fmt.Errorf("failed to marshal model %s: %w", m.ID, err)
	}
	return modelRecord{ID: m.ID, Doc: doc, UpdatedAt: time.Now()}, nil
}

func encodeCombination(c models.Combination) (combinationRecord, error) {
	doc, err := json.Marshal(c)
	if err != nil {
		return combinationRecord{}, fmt.Errorf("failed to marshal combination %s: %w", c.ID, err)
	}
	return combinationRecord{ID: c.ID, Doc: doc, UpdatedAt: time.Now()}, nil
}
