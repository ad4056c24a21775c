// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history persists one record per successful generation.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultPath is the SQLite file used when no path is configured.
const DefaultPath = "database.db"

// MaxPromptLength is the declared width of the prompt column. SQLite does
// not enforce it.
const MaxPromptLength = 500

// Record is one successful generation.
type Record struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Prompt        string `gorm:"size:500;not null" json:"prompt"`
	GeneratedText string `gorm:"type:text;not null" json:"generated_text"`
}

// TableName keeps the table name stable across struct renames.
func (Record) TableName() string {
	return "request_logs"
}

// ListOptions pages through records in insertion order. Zero Limit means no
// limit.
type ListOptions struct {
	Limit  int
	Offset int
}

// Store is the history persistence contract used by the HTTP layer.
type Store interface {
	// Append durably stores a record and returns it with its assigned id.
	Append(ctx context.Context, prompt, generatedText string) (*Record, error)
	// List returns records ordered by id ascending.
	List(ctx context.Context, opts ListOptions) ([]Record, error)
	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)
	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*GormStore)(nil)

// GormStore is a Store backed by a SQLite database through gorm.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the request_logs table. Use ":memory:" for an ephemeral store.
func Open(path string, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = DefaultPath
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.New(
			zap.NewStdLog(logger.Named("gorm")),
			gormlogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting database handle: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// alive for the lifetime of the store.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}

	logger.Info("History store opened", zap.String("path", path))

	return &GormStore{db: db, logger: logger}, nil
}

// Append inserts a record. The id is assigned by the database.
func (s *GormStore) Append(ctx context.Context, prompt, generatedText string) (*Record, error) {
	rec := &Record{Prompt: prompt, GeneratedText: generatedText}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("appending history record: %w", err)
	}
	return rec, nil
}

// List returns records ordered by id.
func (s *GormStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	q := s.db.WithContext(ctx).Order("id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	records := []Record{}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Record{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting history: %w", err)
	}
	return n, nil
}

// Ping checks the underlying connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging history database: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
