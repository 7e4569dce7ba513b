// Package store is the pgx-backed relational layer. It implements the
// narrow repository interfaces consumed by lotteryimport and possync so
// those packages stay testable without a database.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storelink/lotterysync/internal/lotteryimport"
)

// Store wraps the shared connection pool. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindStore returns (nil, nil) when no store exists with the given ID.
func (s *Store) FindStore(ctx context.Context, storeID string) (*lotteryimport.StoreInfo, error) {
	const q = `
		SELECT id, name, active, lottery_enabled
		FROM stores
		WHERE id = $1`

	var info lotteryimport.StoreInfo
	err := s.pool.QueryRow(ctx, q, storeID).Scan(&info.ID, &info.Name, &info.Active, &info.LotteryEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find store: %w", err)
	}
	return &info, nil
}

// ListActiveGames loads the store's active lottery catalog.
func (s *Store) ListActiveGames(ctx context.Context, storeID string) ([]lotteryimport.ExistingGame, error) {
	const q = `
		SELECT id, game_code, game_name, price, COALESCE(pack_value, 0), COALESCE(tickets_per_pack, 0)
		FROM lottery_games
		WHERE store_id = $1 AND active
		ORDER BY game_code`

	rows, err := s.pool.Query(ctx, q, storeID)
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	defer rows.Close()

	var games []lotteryimport.ExistingGame
	for rows.Next() {
		var g lotteryimport.ExistingGame
		if err := rows.Scan(&g.ID, &g.GameCode, &g.GameName, &g.Price, &g.PackValue, &g.TicketsPerPack); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	return games, nil
}
