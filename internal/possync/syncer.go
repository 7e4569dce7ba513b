// Package possync coordinates pack activation and deactivation against the
// file-exchange POS interface.
//
// On activation it generates the pack's UPC family, parks it in the cache
// for a retry window, and drops an AddUpdate price-book document into the
// store's POS inbox. On deactivation it reads back the cached family,
// removes it, and drops a Delete document. The POS system polls the inbox
// asynchronously; this package's responsibility ends at a successful file
// write.
package possync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/storelink/lotterysync/internal/audit"
	"github.com/storelink/lotterysync/internal/naxml"
	"github.com/storelink/lotterysync/internal/upc"
	"github.com/storelink/lotterysync/internal/upccache"
)

// InboxDir is the well-known subfolder of a store's XML gateway path that
// the POS polls for price-book documents.
const InboxDir = "BOInbox"

// Fixed price-book codes for lottery items.
const (
	DefaultDepartmentCode = "9950" // lottery department
	DefaultTaxRateCode    = "0"    // tax exempt
)

// fileExchangePOSTypes are the NAXML-capable POS types that accept
// file-drop integration regardless of the configured connection mode.
var fileExchangePOSTypes = map[string]bool{
	"GILBARCO_PASSPORT":  true,
	"VERIFONE_COMMANDER": true,
	"VERIFONE_RUBY_CI":   true,
	"NCR_RADIANT":        true,
}

// ConnectionModeFileExchange marks an integration as file-drop even for
// POS types outside the allow-list.
const ConnectionModeFileExchange = "FILE_EXCHANGE"

// Generator produces UPC families. *upc.Generator satisfies it.
type Generator interface {
	Generate(in upc.Input) (*upc.Result, error)
}

// Cache is the pack UPC cache. *upccache.Cache satisfies it.
type Cache interface {
	Store(ctx context.Context, e upccache.Entry) bool
	Get(ctx context.Context, packID string) (*upccache.Entry, bool)
	Delete(ctx context.Context, packID string) bool
}

// IntegrationSource resolves a store's POS integration record.
// A (nil, nil) return means the store has none.
type IntegrationSource interface {
	POSIntegration(ctx context.Context, storeID string) (*Integration, error)
}

// Config carries the fixed price-book codes stamped onto every line item.
type Config struct {
	DepartmentCode string
	TaxRateCode    string
}

func (c *Config) applyDefaults() {
	if c.DepartmentCode == "" {
		c.DepartmentCode = DefaultDepartmentCode
	}
	if c.TaxRateCode == "" {
		c.TaxRateCode = DefaultTaxRateCode
	}
}

// Syncer orchestrates generator, cache and POS export for pack lifecycle
// events.
type Syncer struct {
	gen          Generator
	cache        Cache
	integrations IntegrationSource
	auditor      audit.Sink
	cfg          Config
	now          func() time.Time
}

// NewSyncer wires the orchestrator. auditor may be nil to disable audit
// writes (tests).
func NewSyncer(gen Generator, cache Cache, integrations IntegrationSource, auditor audit.Sink, cfg Config) *Syncer {
	cfg.applyDefaults()
	return &Syncer{
		gen:          gen,
		cache:        cache,
		integrations: integrations,
		auditor:      auditor,
		cfg:          cfg,
		now:          time.Now,
	}
}

// SyncPackActivation generates the pack's UPC family, caches it, and
// exports an AddUpdate price-book document when the store has a usable
// file-exchange integration.
//
// Only generation failure is fatal. Cache-store and export failures are
// reported via the result flags so a later retry (within the cache window)
// can fill the gap without the activation being rolled back.
func (s *Syncer) SyncPackActivation(ctx context.Context, pack Pack) ActivationResult {
	log := slog.With("pack_id", pack.ID, "store_id", pack.StoreID, "game_code", pack.GameCode)

	genRes, err := s.gen.Generate(upc.Input{
		GameCode:       pack.GameCode,
		PackNumber:     pack.PackNumber,
		TicketsPerPack: pack.TicketsPerPack,
	})
	if err != nil {
		log.Error("pack activation: upc generation failed", "error", err)
		s.writeAudit(ctx, audit.ActionPackActivated, pack, map[string]any{
			"result": "generation_failed",
			"error":  err.Error(),
		})
		return ActivationResult{Success: false, Error: err.Error()}
	}

	result := ActivationResult{
		Success:     true,
		TicketCount: len(genRes.UPCs),
		FirstUPC:    genRes.Metadata.FirstUPC,
		LastUPC:     genRes.Metadata.LastUPC,
	}

	result.RedisStored = s.cache.Store(ctx, upccache.Entry{
		PackID:      pack.ID,
		StoreID:     pack.StoreID,
		GameCode:    pack.GameCode,
		GameName:    pack.GameName,
		PackNumber:  pack.PackNumber,
		TicketPrice: pack.TicketPrice,
		UPCs:        genRes.UPCs,
	})
	if !result.RedisStored {
		result.Error = "cache store failed"
		log.Warn("pack activation: cache store failed, deactivation will regenerate")
	}

	target, err := s.resolveTarget(ctx, pack.StoreID)
	switch {
	case err != nil:
		result.Error = fmt.Sprintf("pos integration lookup failed: %v", err)
		log.Warn("pack activation: integration lookup failed", "error", err)
	case target == nil:
		// Not configured for POS export; valid state, nothing to do.
	default:
		file, err := s.exportPricebook(pack, target, genRes.UPCs, naxml.ActionAddUpdate)
		if err != nil {
			result.Error = fmt.Sprintf("pos export failed: %v", err)
			log.Warn("pack activation: pos export failed", "error", err)
		} else {
			result.PosExported = true
			result.ExportFile = file
		}
	}

	s.writeAudit(ctx, audit.ActionPackActivated, pack, map[string]any{
		"result":       "activated",
		"ticket_count": result.TicketCount,
		"first_upc":    result.FirstUPC,
		"last_upc":     result.LastUPC,
		"redis_stored": result.RedisStored,
		"pos_exported": result.PosExported,
	})

	log.Info("pack activation synced",
		"tickets", result.TicketCount,
		"redis_stored", result.RedisStored,
		"pos_exported", result.PosExported,
	)
	return result
}

// SyncPackDeactivation reads the cached UPC family, removes it, and
// exports a Delete price-book document when both an integration and cached
// data exist. There is no fatal step.
func (s *Syncer) SyncPackDeactivation(ctx context.Context, pack Pack) DeactivationResult {
	log := slog.With("pack_id", pack.ID, "store_id", pack.StoreID)

	result := DeactivationResult{Success: true}

	entry, found := s.cache.Get(ctx, pack.ID)
	result.CacheFound = found
	if found {
		result.CacheDeleted = s.cache.Delete(ctx, pack.ID)
	}

	target, err := s.resolveTarget(ctx, pack.StoreID)
	switch {
	case err != nil:
		result.Error = fmt.Sprintf("pos integration lookup failed: %v", err)
		log.Warn("pack deactivation: integration lookup failed", "error", err)
	case target == nil || !found:
		// No integration or nothing cached to delete; skip silently.
	default:
		file, err := s.exportPricebook(pack, target, entry.UPCs, naxml.ActionDelete)
		if err != nil {
			result.Error = fmt.Sprintf("pos export failed: %v", err)
			log.Warn("pack deactivation: pos export failed", "error", err)
		} else {
			result.PosExported = true
			result.ExportFile = file
		}
	}

	s.writeAudit(ctx, audit.ActionPackDeactivated, pack, map[string]any{
		"result":        "deactivated",
		"cache_found":   result.CacheFound,
		"cache_deleted": result.CacheDeleted,
		"pos_exported":  result.PosExported,
	})

	log.Info("pack deactivation synced",
		"cache_found", result.CacheFound,
		"pos_exported", result.PosExported,
	)
	return result
}

// resolveTarget decides whether a store's integration record is usable for
// file exchange. nil means "not configured": inactive record, non-file
// POS type without FILE_EXCHANGE mode, or empty gateway path.
func (s *Syncer) resolveTarget(ctx context.Context, storeID string) (*Integration, error) {
	integ, err := s.integrations.POSIntegration(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if integ == nil || !integ.IsActive {
		return nil, nil
	}
	if !fileExchangePOSTypes[integ.POSType] && integ.ConnectionMode != ConnectionModeFileExchange {
		return nil, nil
	}
	if integ.XMLGatewayPath == "" {
		return nil, nil
	}
	return integ, nil
}

// exportPricebook builds the NAXML document and drops it into the store's
// inbox. Returns the written file path.
func (s *Syncer) exportPricebook(pack Pack, target *Integration, upcs []string, action naxml.Action) (string, error) {
	items := make([]naxml.LineItem, 0, len(upcs))
	short := pack.GameName
	if len(short) > 20 {
		short = short[:20]
	}
	for i, code := range upcs {
		items = append(items, naxml.LineItem{
			ItemCode:         code,
			Description:      fmt.Sprintf("%s #%0*d", pack.GameName, upc.SerialDigits, i),
			ShortDescription: short,
			DepartmentCode:   s.cfg.DepartmentCode,
			UnitPrice:        pack.TicketPrice,
			TaxRateCode:      s.cfg.TaxRateCode,
			IsActive:         action == naxml.ActionAddUpdate,
			Action:           action,
		})
	}

	now := s.now()
	doc := naxml.NewDocument(pack.StoreID, target.NAXMLVersion, now, items)
	data, err := doc.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	inbox := filepath.Join(target.XMLGatewayPath, InboxDir)
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return "", fmt.Errorf("create inbox: %w", err)
	}

	path := filepath.Join(inbox, exportFileName(pack.ID, action, now))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return path, nil
}

// exportFileName embeds an action marker on delete, the first 8 chars of
// the pack id, and a filesystem-safe second-precision timestamp.
func exportFileName(packID string, action naxml.Action, at time.Time) string {
	id := packID
	if len(id) > 8 {
		id = id[:8]
	}
	ts := at.UTC().Truncate(time.Second).Format(time.RFC3339)
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)

	if action == naxml.ActionDelete {
		return fmt.Sprintf("PB_DEL_%s_%s.xml", id, ts)
	}
	return fmt.Sprintf("PB_%s_%s.xml", id, ts)
}

func (s *Syncer) writeAudit(ctx context.Context, action audit.Action, pack Pack, detail map[string]any) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Write(ctx, audit.Entry{
		Action:   action,
		StoreID:  pack.StoreID,
		ObjectID: pack.ID,
		Detail:   detail,
	})
	if err != nil {
		slog.Error("audit write failed", "action", action, "pack_id", pack.ID, "error", err)
	}
}
