package lotteryimport

// rows.go holds the per-row schema rules and the derived-field math shared
// by the validate and commit phases. Keeping DeriveTicketsPerPack in one
// place guarantees preview totals and commit totals can never diverge.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Header names required in every upload, post-normalization.
var RequiredHeaders = []string{"game_code", "game_name", "price"}

const (
	maxGameNameLen = 100
	maxTickets     = 1000
)

var gameCodePattern = regexp.MustCompile(`^\d{4}$`)

// parseGameRow applies the schema rules to one parsed CSV row and returns
// the typed payload plus every violation found.
func parseGameRow(data map[string]string) (GameRow, []string) {
	var row GameRow
	var errs []string

	row.GameCode = strings.TrimSpace(data["game_code"])
	if !gameCodePattern.MatchString(row.GameCode) {
		errs = append(errs, fmt.Sprintf("game_code %q must be exactly 4 digits", row.GameCode))
	}

	row.GameName = strings.TrimSpace(data["game_name"])
	if row.GameName == "" {
		errs = append(errs, "game_name is required")
	} else if len(row.GameName) > maxGameNameLen {
		errs = append(errs, fmt.Sprintf("game_name exceeds %d characters", maxGameNameLen))
	}

	if v, err := parsePositiveDecimal(data["price"]); err != nil {
		errs = append(errs, "price "+err.Error())
	} else {
		row.Price = v
	}

	if raw := strings.TrimSpace(data["pack_value"]); raw != "" {
		if v, err := parsePositiveDecimal(raw); err != nil {
			errs = append(errs, "pack_value "+err.Error())
		} else {
			row.PackValue = v
		}
	}

	if raw := strings.TrimSpace(data["tickets_per_pack"]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTickets {
			errs = append(errs, fmt.Sprintf("tickets_per_pack %q must be an integer between 1 and %d", raw, maxTickets))
		} else {
			row.TicketsPerPack = n
		}
	}

	// A pack must resolve to at least one ticket, either explicitly or
	// derived from pack value.
	if len(errs) == 0 && DeriveTicketsPerPack(row.TicketsPerPack, row.PackValue, row.Price) < 1 {
		errs = append(errs, "tickets_per_pack or pack_value is required")
	}

	return row, errs
}

func parsePositiveDecimal(raw string) (float64, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "$"))
	if raw == "" {
		return 0, fmt.Errorf("is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return v, nil
}

// DeriveTicketsPerPack resolves the ticket count for a row: the explicit
// value when present, otherwise floor(packValue/price). Both import phases
// call this same function.
func DeriveTicketsPerPack(explicit int, packValue, price float64) int {
	if explicit > 0 {
		return explicit
	}
	if price <= 0 || packValue <= 0 {
		return 0
	}
	return int(math.Floor(packValue / price))
}
