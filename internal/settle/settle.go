// Package settle computes contest payouts. It is pure: no clock reads, no
// persistence, no randomness, so replaying the same standings always yields
// byte-identical output.
package settle

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry is one contest entry with its final score.
type Entry struct {
	EntryID  uint64
	UserID   uint64
	Score    int64
	JoinedAt time.Time
}

// Payout is a computed prize for a single entry. The id is derived from
// (contest id, entry id) so recomputation reproduces it exactly.
type Payout struct {
	ID          string
	EntryID     uint64
	UserID      uint64
	Rank        int
	AmountCents int64
}

var ErrBadPayoutSpec = errors.New("bad payout spec")

var one = decimal.NewFromInt(1)

// ParseSpec decodes a payout spec: a JSON array of positive decimal fraction
// strings by rank, summing to at most 1. The unpaid remainder, if any, is
// the house rake.
func ParseSpec(raw string) ([]decimal.Decimal, error) {
	var strs []string
	if err := json.Unmarshal([]byte(raw), &strs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayoutSpec, err)
	}
	if len(strs) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrBadPayoutSpec)
	}
	fracs := make([]decimal.Decimal, 0, len(strs))
	total := decimal.Zero
	for _, s := range strs {
		f, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayoutSpec, err)
		}
		if f.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: fraction %s not positive", ErrBadPayoutSpec, s)
		}
		total = total.Add(f)
		fracs = append(fracs, f)
	}
	if total.GreaterThan(one) {
		return nil, fmt.Errorf("%w: fractions sum to %s", ErrBadPayoutSpec, total)
	}
	return fracs, nil
}

// Rank returns entries in final standing order: higher score first, ties
// broken by earlier join time, then lower entry id. The tie-break gives a
// fixed total order; tied entries never share a pooled prize.
func Rank(entries []Entry) []Entry {
	ranked := make([]Entry, len(entries))
	copy(ranked, entries)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].JoinedAt.Equal(ranked[j].JoinedAt) {
			return ranked[i].JoinedAt.Before(ranked[j].JoinedAt)
		}
		return ranked[i].EntryID < ranked[j].EntryID
	})
	return ranked
}

// Compute maps final standings to payouts. The prize pool is
// entryFeeCents * len(entries); each winning rank gets
// floor(pool * fraction), and every remainder cent from flooring goes to the
// rank-1 entry so that the paid total exactly equals the payable pool. Ranks
// whose share floors to zero cents are omitted from the result.
func Compute(contestID uint64, entryFeeCents int64, entries []Entry, fractions []decimal.Decimal) ([]Payout, error) {
	if entryFeeCents < 0 {
		return nil, fmt.Errorf("%w: negative entry fee", ErrBadPayoutSpec)
	}
	if len(entries) == 0 {
		return []Payout{}, nil
	}
	pool := decimal.NewFromInt(entryFeeCents).Mul(decimal.NewFromInt(int64(len(entries))))

	specTotal := decimal.Zero
	for _, f := range fractions {
		specTotal = specTotal.Add(f)
	}
	payable := pool.Mul(specTotal).Floor().IntPart()

	ranked := Rank(entries)
	winners := len(fractions)
	if winners > len(ranked) {
		winners = len(ranked)
	}

	payouts := make([]Payout, 0, winners)
	var paid int64
	for i := 0; i < winners; i++ {
		share := pool.Mul(fractions[i]).Floor().IntPart()
		paid += share
		payouts = append(payouts, Payout{
			ID:          payoutID(contestID, ranked[i].EntryID),
			EntryID:     ranked[i].EntryID,
			UserID:      ranked[i].UserID,
			Rank:        i + 1,
			AmountCents: share,
		})
	}
	// cents lost to flooring, plus the shares of any unfilled ranks, all go
	// to first place so the paid total equals the payable pool exactly
	if remainder := payable - paid; remainder > 0 && len(payouts) > 0 {
		payouts[0].AmountCents += remainder
	}
	// a share can floor to zero on tiny pools; a zero-cent prize is no prize
	kept := payouts[:0]
	for _, p := range payouts {
		if p.AmountCents > 0 {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func payoutID(contestID, entryID uint64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("contest-payout:%d:%d", contestID, entryID))).String()
}
