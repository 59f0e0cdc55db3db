package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// PositionStore persists open positions keyed by position ID in one
// versioned JSON document.
type PositionStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewPositionStore(path string, logger *slog.Logger) *PositionStore {
	return &PositionStore{
		path:   path,
		logger: logger.With(slog.String("component", "position_store")),
	}
}

type positionDocument struct {
	Version   string                  `json:"version"`
	SavedAt   string                  `json:"savedAt"`
	Positions map[string]positionJSON `json:"positions"`
}

type positionJSON struct {
	ID                string `json:"id"`
	Pair              string `json:"pair"`
	Quantity          string `json:"quantity"`
	EntryPrice        string `json:"entryPrice"`
	EntryOrderID      string `json:"entryOrderId"`
	TakeProfitOrderID string `json:"takeProfitOrderId"`
	StopLossOrderID   string `json:"stopLossOrderId"`
	TakeProfitPrice   string `json:"takeProfitPrice"`
	StopLossPrice     string `json:"stopLossPrice"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
	EntryFilledAt     string `json:"entryFilledAt"`
}

func encodePosition(pos domain.Position) positionJSON {
	return positionJSON{
		ID:                pos.ID,
		Pair:              pos.Pair,
		Quantity:          pos.Quantity.String(),
		EntryPrice:        pos.EntryPrice.String(),
		EntryOrderID:      pos.EntryOrderID,
		TakeProfitOrderID: pos.TakeProfitOrderID,
		StopLossOrderID:   pos.StopLossOrderID,
		TakeProfitPrice:   pos.TakeProfitPrice.String(),
		StopLossPrice:     pos.StopLossPrice.String(),
		Status:            string(pos.Status),
		CreatedAt:         pos.CreatedAt.UTC().Format(time.RFC3339Nano),
		EntryFilledAt:     pos.EntryFilledAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodePosition(j positionJSON) (domain.Position, error) {
	qty, err := decimal.NewFromString(j.Quantity)
	if err != nil {
		return domain.Position{}, fmt.Errorf("quantity %q: %w", j.Quantity, err)
	}
	entry, err := decimal.NewFromString(j.EntryPrice)
	if err != nil {
		return domain.Position{}, fmt.Errorf("entryPrice %q: %w", j.EntryPrice, err)
	}
	tp, err := decimal.NewFromString(j.TakeProfitPrice)
	if err != nil {
		return domain.Position{}, fmt.Errorf("takeProfitPrice %q: %w", j.TakeProfitPrice, err)
	}
	sl, err := decimal.NewFromString(j.StopLossPrice)
	if err != nil {
		return domain.Position{}, fmt.Errorf("stopLossPrice %q: %w", j.StopLossPrice, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, j.CreatedAt)
	if err != nil {
		return domain.Position{}, fmt.Errorf("createdAt %q: %w", j.CreatedAt, err)
	}
	entryFilledAt, _ := time.Parse(time.RFC3339Nano, j.EntryFilledAt)

	status := domain.PositionStatus(j.Status)
	if status == "" {
		status = domain.PositionStatusOpen
	}

	return domain.Position{
		ID:                j.ID,
		Pair:              j.Pair,
		Quantity:          qty,
		EntryPrice:        entry,
		EntryOrderID:      j.EntryOrderID,
		TakeProfitOrderID: j.TakeProfitOrderID,
		StopLossOrderID:   j.StopLossOrderID,
		TakeProfitPrice:   tp,
		StopLossPrice:     sl,
		Status:            status,
		CreatedAt:         createdAt,
		EntryFilledAt:     entryFilledAt,
	}, nil
}

// Save inserts or replaces the position with the same ID.
func (s *PositionStore) Save(ctx context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Positions[pos.ID] = encodePosition(pos)
	return s.write(doc)
}

// Delete removes the position with the given ID. Deleting a position that is
// already gone is not an error, so a force-close can run twice safely.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Positions[id]; !ok {
		return nil
	}
	delete(doc.Positions, id)
	return s.write(doc)
}

// List returns all readable positions, ordered by open time. Corrupt entries
// are skipped with a warning.
func (s *PositionStore) List(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(doc.Positions))
	for id, j := range doc.Positions {
		pos, err := decodePosition(j)
		if err != nil {
			s.logger.Warn("skipping corrupt position record",
				slog.String("position_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].CreatedAt.Before(positions[j].CreatedAt)
	})
	return positions, nil
}

func (s *PositionStore) load() (positionDocument, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return positionDocument{
			Version:   documentVersion,
			Positions: make(map[string]positionJSON),
		}, nil
	}
	if err != nil {
		return positionDocument{}, fmt.Errorf("file: read position store: %w", err)
	}

	var doc positionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return positionDocument{}, fmt.Errorf("file: parse position store: %w", err)
	}
	if doc.Positions == nil {
		doc.Positions = make(map[string]positionJSON)
	}
	return doc, nil
}

func (s *PositionStore) write(doc positionDocument) error {
	doc.Version = documentVersion
	doc.SavedAt = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode position store: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("file: write position store: %w", err)
	}
	return nil
}
