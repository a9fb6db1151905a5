package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// BetType enumerates the JRA pool types.
type BetType string

const (
	BetWin             BetType = "win"
	BetPlace           BetType = "place"
	BetBracketQuinella BetType = "bracket_quinella"
	BetQuinella        BetType = "quinella"
	BetExacta          BetType = "exacta"
	BetWide            BetType = "wide"
	BetTrio            BetType = "trio"
	BetTrifecta        BetType = "trifecta"
)

// BetTypes lists every type in display order.
var BetTypes = []BetType{
	BetWin, BetPlace, BetBracketQuinella, BetQuinella,
	BetExacta, BetWide, BetTrio, BetTrifecta,
}

var betLabels = map[BetType]string{
	BetWin:             "単勝",
	BetPlace:           "複勝",
	BetBracketQuinella: "枠連",
	BetQuinella:        "馬連",
	BetExacta:          "馬単",
	BetWide:            "ワイド",
	BetTrio:            "三連複",
	BetTrifecta:        "三連単",
}

// betAliases are alternate spellings seen on tickets and in older records.
var betAliases = map[string]BetType{
	"3連複": BetTrio,
	"3連単": BetTrifecta,
}

// Label is the Japanese name printed on the ticket.
func (t BetType) Label() string { return betLabels[t] }

// Legs is the number of runners named by one ticket of this type.
func (t BetType) Legs() int {
	switch t {
	case BetWin, BetPlace:
		return 1
	case BetTrio, BetTrifecta:
		return 3
	case BetBracketQuinella, BetQuinella, BetExacta, BetWide:
		return 2
	}
	return 0
}

// ParseBetType accepts the identifier, the Japanese label or one of its
// alternate spellings.
func ParseBetType(s string) (BetType, error) {
	s = strings.TrimSpace(s)
	for _, t := range BetTypes {
		if s == string(t) || s == t.Label() {
			return t, nil
		}
	}
	if t, ok := betAliases[s]; ok {
		return t, nil
	}
	return "", invalid("bet_type", "unknown bet type %q", s)
}

// MarshalJSON writes the Japanese label, which is what the Gateway stores.
// Unknown types are written as is.
func (t BetType) MarshalJSON() ([]byte, error) {
	if l, ok := betLabels[t]; ok {
		return json.Marshal(l)
	}
	return json.Marshal(string(t))
}

// UnmarshalJSON accepts any spelling ParseBetType does. Unrecognised values
// are kept verbatim so old records still decode.
func (t *BetType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("bet_type: %w", err)
	}
	if parsed, err := ParseBetType(s); err == nil {
		*t = parsed
		return nil
	}
	*t = BetType(s)
	return nil
}

// MinStake is the smallest ticket; stakes move in steps of the same size.
const MinStake = 100

// BettingOutcome records one ticket and whether it paid.
type BettingOutcome struct {
	ID      int64   `json:"id,omitempty"`
	RaceID  int64   `json:"race_id"`
	BetType BetType `json:"bet_type"`
	Numbers string  `json:"bet_numbers"`
	Amount  int     `json:"amount"`
	IsWon   bool    `json:"is_won"`
	Payout  int     `json:"payout"`
}

// NewBettingOutcome validates a ticket before it is sent anywhere. A losing
// ticket always carries a zero payout whatever was entered.
func NewBettingOutcome(raceID int64, betType BetType, numbers string, amount int, won bool, payout int) (BettingOutcome, error) {
	if raceID <= 0 {
		return BettingOutcome{}, invalid("race_id", "must be positive")
	}
	if betType.Legs() == 0 {
		return BettingOutcome{}, invalid("bet_type", "unknown bet type %q", betType)
	}
	numbers, err := normalizeNumbers(betType, numbers)
	if err != nil {
		return BettingOutcome{}, err
	}
	if amount < MinStake || amount%MinStake != 0 {
		return BettingOutcome{}, invalid("amount", "must be at least %d in steps of %d", MinStake, MinStake)
	}
	if !won {
		payout = 0
	}
	if payout < 0 {
		return BettingOutcome{}, invalid("payout", "must not be negative")
	}
	return BettingOutcome{
		RaceID:  raceID,
		BetType: betType,
		Numbers: numbers,
		Amount:  amount,
		IsWon:   won,
		Payout:  payout,
	}, nil
}

// normalizeNumbers trims and checks "n", "a-b" or "a-b-c" against the
// bet type's leg count.
func normalizeNumbers(t BetType, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid("bet_numbers", "required")
	}
	parts := strings.Split(s, "-")
	if len(parts) != t.Legs() {
		return "", invalid("bet_numbers", "%s needs %d number(s), got %q", t, t.Legs(), s)
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return "", invalid("bet_numbers", "%q is not a runner number", p)
		}
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "-"), nil
}
