package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/storelink/lotterysync/internal/possync"
)

// Pack lifecycle states.
const (
	PackStatusReceived    = "received"
	PackStatusActive      = "active"
	PackStatusDeactivated = "deactivated"
	PackStatusSettled     = "settled"
)

// FindPack loads a pack with its game details for a sync operation.
// Returns (nil, nil) when the pack does not exist.
func (s *Store) FindPack(ctx context.Context, packID string) (*possync.Pack, error) {
	const q = `
		SELECT p.id, p.store_id, g.game_code, g.game_name, p.pack_number,
		       g.price, COALESCE(g.tickets_per_pack, 0)
		FROM lottery_packs p
		JOIN lottery_games g ON g.id = p.game_id
		WHERE p.id = $1`

	var pack possync.Pack
	err := s.pool.QueryRow(ctx, q, packID).Scan(
		&pack.ID, &pack.StoreID, &pack.GameCode, &pack.GameName,
		&pack.PackNumber, &pack.TicketPrice, &pack.TicketsPerPack)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pack: %w", err)
	}
	return &pack, nil
}

// UpdatePackStatus transitions a pack's lifecycle state.
func (s *Store) UpdatePackStatus(ctx context.Context, packID, status string) error {
	const q = `
		UPDATE lottery_packs
		SET status = $2, updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, packID, status)
	if err != nil {
		return fmt.Errorf("update pack status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update pack status: pack %s not found", packID)
	}
	return nil
}

// POSIntegration returns the store's POS integration record, or (nil, nil)
// when the store has none configured. A store has at most one.
func (s *Store) POSIntegration(ctx context.Context, storeID string) (*possync.Integration, error) {
	const q = `
		SELECT pos_type, connection_mode, COALESCE(xml_gateway_path, ''), COALESCE(naxml_version, ''), is_active
		FROM pos_integrations
		WHERE store_id = $1`

	var integ possync.Integration
	err := s.pool.QueryRow(ctx, q, storeID).Scan(
		&integ.POSType, &integ.ConnectionMode, &integ.XMLGatewayPath,
		&integ.NAXMLVersion, &integ.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pos integration: %w", err)
	}
	return &integ, nil
}
