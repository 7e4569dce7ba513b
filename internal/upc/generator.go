// Package upc generates the UPC-A barcode family for a serialized lottery
// pack.
//
// Every ticket in a pack carries its own scannable barcode. The family is
// fully determined by the game code, the pack number and the ticket count,
// so regenerating the same pack on retry always yields byte-identical
// codes. There is no randomness and no time dependency anywhere in this
// package.
package upc

import (
	"fmt"
)

// Digit layout of the 12-digit UPC-A code. The 11-digit body is the game
// code, the low four digits of the pack number, and a 3-digit ticket
// serial; the 12th digit is the mod-10 check digit.
const (
	GameCodeDigits   = 4
	PackNumberDigits = 7
	packBodyDigits   = 4
	SerialDigits     = 3
)

// DefaultMaxTickets bounds TicketsPerPack. The 3-digit serial caps a pack
// at 1000 tickets (serials 000-999).
const DefaultMaxTickets = 1000

// Input describes the pack whose barcode family is requested.
type Input struct {
	// GameCode is exactly 4 numeric digits.
	GameCode string

	// PackNumber is exactly 7 numeric digits. Only the low four digits
	// participate in the barcode body.
	PackNumber string

	// TicketsPerPack is the number of tickets, 1..MaxTickets.
	TicketsPerPack int

	// StartSerial is the first ticket serial. Zero by convention.
	StartSerial int
}

// Metadata summarizes a generated family for audit logging. FirstUPC and
// LastUPC are purely informational, not a range check.
type Metadata struct {
	PackNumber string `json:"packNumber"`
	FirstUPC   string `json:"firstUpc"`
	LastUPC    string `json:"lastUpc"`
}

// Result holds a complete generated barcode family.
type Result struct {
	UPCs     []string `json:"upcs"`
	Metadata Metadata `json:"metadata"`
}

// ValidationError reports malformed generator input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Generator produces UPC-A families. The zero value is not usable; call
// NewGenerator.
type Generator struct {
	maxTickets int
}

// NewGenerator returns a generator bounded at maxTickets per pack.
// maxTickets <= 0 selects DefaultMaxTickets.
func NewGenerator(maxTickets int) *Generator {
	if maxTickets <= 0 || maxTickets > DefaultMaxTickets {
		maxTickets = DefaultMaxTickets
	}
	return &Generator{maxTickets: maxTickets}
}

// Generate builds the barcode family for a pack. The returned error, when
// non-nil, is always a *ValidationError; generation itself cannot fail on
// valid input.
func (g *Generator) Generate(in Input) (*Result, error) {
	if !isDigits(in.GameCode) || len(in.GameCode) != GameCodeDigits {
		return nil, &ValidationError{Field: "gameCode", Message: fmt.Sprintf("must be exactly %d numeric digits", GameCodeDigits)}
	}
	if !isDigits(in.PackNumber) || len(in.PackNumber) != PackNumberDigits {
		return nil, &ValidationError{Field: "packNumber", Message: fmt.Sprintf("must be exactly %d numeric digits", PackNumberDigits)}
	}
	if in.TicketsPerPack < 1 || in.TicketsPerPack > g.maxTickets {
		return nil, &ValidationError{Field: "ticketsPerPack", Message: fmt.Sprintf("must be between 1 and %d", g.maxTickets)}
	}
	if in.StartSerial < 0 || in.StartSerial+in.TicketsPerPack > maxSerial()+1 {
		return nil, &ValidationError{Field: "startSerial", Message: fmt.Sprintf("serial range must stay within 0-%d", maxSerial())}
	}

	base := in.GameCode + in.PackNumber[PackNumberDigits-packBodyDigits:]

	upcs := make([]string, 0, in.TicketsPerPack)
	for serial := in.StartSerial; serial < in.StartSerial+in.TicketsPerPack; serial++ {
		body := fmt.Sprintf("%s%0*d", base, SerialDigits, serial)
		upcs = append(upcs, body+string(rune('0'+CheckDigit(body))))
	}

	return &Result{
		UPCs: upcs,
		Metadata: Metadata{
			PackNumber: in.PackNumber,
			FirstUPC:   upcs[0],
			LastUPC:    upcs[len(upcs)-1],
		},
	}, nil
}

// CheckDigit computes the UPC-A mod-10 check digit over an 11-digit body
// using the standard alternating weights: counting from the right, odd
// positions weigh 3 and even positions weigh 1.
func CheckDigit(body string) int {
	sum := 0
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		// Position from the right, 1-based.
		if (len(body)-i)%2 == 1 {
			sum += d * 3
		} else {
			sum += d
		}
	}
	return (10 - sum%10) % 10
}

// Verify reports whether a 12-digit code carries a valid UPC-A check
// digit. It is independent of Generate so tests and downstream consumers
// can cross-check generated codes.
func Verify(code string) bool {
	if len(code) != GameCodeDigits+packBodyDigits+SerialDigits+1 || !isDigits(code) {
		return false
	}
	body := code[:len(code)-1]
	return CheckDigit(body) == int(code[len(code)-1]-'0')
}

func maxSerial() int {
	n := 1
	for i := 0; i < SerialDigits; i++ {
		n *= 10
	}
	return n - 1
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
