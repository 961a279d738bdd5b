package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nhle/kanban-board/internal/model"
)

type historicalRow struct {
	OwnerID    string    `db:"owner_id"`
	BoardID    string    `db:"board_id"`
	CardID     string    `db:"card_id"`
	Data       string    `db:"data"`
	RecordedAt time.Time `db:"recorded_at"`
}

// SaveHistorical inserts or replaces the record for a card.
func (s *SQLiteStore) SaveHistorical(ctx context.Context, card model.HistoricalCard) error {
	if card.OwnerID == "" || card.BoardID == "" || card.ID == "" {
		return fmt.Errorf("historical card needs owner, board and card id")
	}
	if card.RecordedAt.IsZero() {
		card.RecordedAt = s.clock.Now().UTC()
	}
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshaling historical card %s: %w", card.ID, err)
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO historical_cards (owner_id, board_id, card_id, data, recorded_at)
		VALUES (:owner_id, :board_id, :card_id, :data, :recorded_at)`,
		historicalRow{
			OwnerID:    card.OwnerID,
			BoardID:    card.BoardID,
			CardID:     card.ID,
			Data:       string(data),
			RecordedAt: card.RecordedAt.UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("saving historical card %s: %w", card.ID, err)
	}
	return nil
}

// DeleteHistorical removes the record for a card. Missing records are
// not an error.
func (s *SQLiteStore) DeleteHistorical(ctx context.Context, ownerID, boardID, cardID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM historical_cards WHERE owner_id = ? AND board_id = ? AND card_id = ?",
		ownerID, boardID, cardID)
	if err != nil {
		return fmt.Errorf("deleting historical card %s: %w", cardID, err)
	}
	return nil
}

// ListHistorical returns a board's records, oldest first.
func (s *SQLiteStore) ListHistorical(ctx context.Context, ownerID, boardID string) ([]model.HistoricalCard, error) {
	var rows []historicalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT owner_id, board_id, card_id, data, recorded_at
		FROM historical_cards
		WHERE owner_id = ? AND board_id = ?
		ORDER BY recorded_at, card_id`,
		ownerID, boardID)
	if err != nil {
		return nil, fmt.Errorf("listing historical cards: %w", err)
	}

	cards := make([]model.HistoricalCard, 0, len(rows))
	for _, r := range rows {
		var card model.HistoricalCard
		if err := json.Unmarshal([]byte(r.Data), &card); err != nil {
			return nil, fmt.Errorf("unmarshaling historical card %s: %w", r.CardID, err)
		}
		cards = append(cards, card)
	}
	return cards, nil
}
