package importer

import (
	"context"
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"neurogallery/server/internal/interfaces"
)

// InvokeAISource reads an uploaded InvokeAI database export. Only the models
// table is consulted; each row carries the source id and a config JSON blob.
type InvokeAISource struct{}

// Scan opens the export read-only and yields its raw rows. Rows that cannot
// be scanned are skipped; a blob that cannot be opened at all aborts the
// whole import.
func (InvokeAISource) Scan(ctx context.Context, path string) ([]interfaces.RawModelRow, error) {
	db, err := gorm.Open(sqlite.Open("file:"+path+"?mode=ro"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open export database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	rows, err := db.WithContext(ctx).Raw("SELECT id, config FROM models").Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to read export models: %w", err)
	}
	defer rows.Close()

	var out []interfaces.RawModelRow
	for rows.Next() {
		var id, cfg string
		if err := rows.Scan(&id, &cfg); err != nil {
			log.Printf("[Import] Skipping unreadable export row: %v", err)
			continue
		}
		out = append(out, interfaces.RawModelRow{ID: id, Config: []byte(cfg)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan export: %w", err)
	}

	return out, nil
}

var _ interfaces.ModelSource = InvokeAISource{}
