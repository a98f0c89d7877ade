// Package repo implements persistence for the bot state. This file provides
// load/save of the single serialized state blob.
//
// Error semantics:
//   - LoadState returns a fresh empty state when no blob exists yet.
//   - LoadState returns an error when the blob exists but cannot be decoded;
//     callers must treat that as fatal rather than run with partial state.
//   - SaveState upserts the single row and propagates raw gorm errors.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-supply-bot/internal/domain"
)

// stateRowID is the primary key of the only row in bot_state.
const stateRowID = 1

// LoadState reads and decodes the persisted state blob.
func LoadState(ctx context.Context, db *gorm.DB) (*domain.State, error) {
	var rec domain.StateRecord
	err := db.WithContext(ctx).First(&rec, stateRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	st := domain.NewState()
	if err := json.Unmarshal(rec.Data, st); err != nil {
		return nil, fmt.Errorf("state blob corrupt: %w", err)
	}
	// Maps inside an older blob may be null after decoding.
	if st.Tickets == nil {
		st.Tickets = make(map[int]*domain.Ticket)
	}
	if st.Groups == nil {
		st.Groups = make(map[string][]int64)
	}
	if st.Sessions == nil {
		st.Sessions = make(map[int64]*domain.Session)
	}
	return st, nil
}

// SaveState serializes the state and upserts the single blob row.
func SaveState(ctx context.Context, db *gorm.DB, st *domain.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	rec := domain.StateRecord{ID: stateRowID, Data: data, UpdatedAt: time.Now().UTC()}
	err = db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
