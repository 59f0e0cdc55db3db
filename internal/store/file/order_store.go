package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// OrderStore persists order records as one versioned JSON document.
// Decimal fields are serialized as strings and timestamps as RFC 3339 so the
// file stays portable across tooling.
type OrderStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewOrderStore(path string, logger *slog.Logger) *OrderStore {
	return &OrderStore{
		path:   path,
		logger: logger.With(slog.String("component", "order_store")),
	}
}

type orderDocument struct {
	Version string      `json:"version"`
	SavedAt string      `json:"savedAt"`
	Orders  []orderJSON `json:"orders"`
}

type orderJSON struct {
	ID         string `json:"id"`
	Pair       string `json:"pair"`
	Side       string `json:"side"`
	Role       string `json:"role"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Status     string `json:"status"`
	PositionID string `json:"positionId"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

func encodeOrder(rec domain.OrderRecord) orderJSON {
	return orderJSON{
		ID:         rec.ID,
		Pair:       rec.Pair,
		Side:       string(rec.Side),
		Role:       string(rec.Role),
		Price:      rec.Price.String(),
		Quantity:   rec.Quantity.String(),
		Status:     string(rec.Status),
		PositionID: rec.PositionID,
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeOrder(j orderJSON) (domain.OrderRecord, error) {
	price, err := decimal.NewFromString(j.Price)
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("price %q: %w", j.Price, err)
	}
	qty, err := decimal.NewFromString(j.Quantity)
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("quantity %q: %w", j.Quantity, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, j.CreatedAt)
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("createdAt %q: %w", j.CreatedAt, err)
	}
	updatedAt, _ := time.Parse(time.RFC3339Nano, j.UpdatedAt)

	return domain.OrderRecord{
		ID:         j.ID,
		Pair:       j.Pair,
		Side:       domain.OrderSide(j.Side),
		Role:       domain.OrderRole(j.Role),
		Price:      price,
		Quantity:   qty,
		Status:     domain.RecordStatus(j.Status),
		PositionID: j.PositionID,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

// Save inserts or replaces the record with the same ID.
func (s *OrderStore) Save(ctx context.Context, rec domain.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	replaced := false
	for i, o := range doc.Orders {
		if o.ID == rec.ID {
			doc.Orders[i] = encodeOrder(rec)
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Orders = append(doc.Orders, encodeOrder(rec))
	}
	return s.write(doc)
}

// UpdateStatus changes the lifecycle status of an existing record.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.RecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for i, o := range doc.Orders {
		if o.ID == id {
			doc.Orders[i].Status = string(status)
			doc.Orders[i].UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
			return s.write(doc)
		}
	}
	return domain.ErrNotFound
}

// Delete removes the record with the given ID. Deleting a record that is
// already gone is not an error.
func (s *OrderStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	kept := doc.Orders[:0]
	for _, o := range doc.Orders {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	if len(kept) == len(doc.Orders) {
		return nil
	}
	doc.Orders = kept
	return s.write(doc)
}

// List returns all readable records. Corrupt entries are skipped with a
// warning rather than failing the whole store.
func (s *OrderStore) List(ctx context.Context) ([]domain.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	recs := make([]domain.OrderRecord, 0, len(doc.Orders))
	for _, o := range doc.Orders {
		rec, err := decodeOrder(o)
		if err != nil {
			s.logger.Warn("skipping corrupt order record",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// RemoveOlderThan prunes records created before cutoff and returns the
// number removed.
func (s *OrderStore) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}

	kept := doc.Orders[:0]
	removed := 0
	for _, o := range doc.Orders {
		createdAt, err := time.Parse(time.RFC3339Nano, o.CreatedAt)
		if err == nil && createdAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	if removed == 0 {
		return 0, nil
	}
	doc.Orders = kept
	if err := s.write(doc); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *OrderStore) load() (orderDocument, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return orderDocument{Version: documentVersion}, nil
	}
	if err != nil {
		return orderDocument{}, fmt.Errorf("file: read order store: %w", err)
	}

	var doc orderDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return orderDocument{}, fmt.Errorf("file: parse order store: %w", err)
	}
	return doc, nil
}

func (s *OrderStore) write(doc orderDocument) error {
	doc.Version = documentVersion
	doc.SavedAt = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode order store: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("file: write order store: %w", err)
	}
	return nil
}
