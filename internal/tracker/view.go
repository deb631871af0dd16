package tracker

import (
	"sort"
	"strings"
	"time"

	"github.com/V4T54L/txn-watch/internal/domain"
)

// Project derives the presentation list from a store snapshot.
//
// Transactions shorter than thresholdSeconds are dropped (a threshold of zero
// keeps everything), the remainder is filtered by a case-insensitive
// substring match against the id and the last event's searchable fields, and
// the result is ordered longest first. Equal durations are ordered by id.
func Project(txns []domain.Transaction, thresholdSeconds float64, filter string, now time.Time) []domain.TxnView {
	needle := strings.ToLower(strings.TrimSpace(filter))
	minDuration := time.Duration(thresholdSeconds * float64(time.Second))

	type row struct {
		d time.Duration
		t domain.Transaction
	}
	rows := make([]row, 0, len(txns))
	for _, t := range txns {
		d := t.Duration(now)
		if thresholdSeconds > 0 && d < minDuration {
			continue
		}
		if needle != "" && !matches(t, needle) {
			continue
		}
		rows = append(rows, row{d: d, t: t})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].d != rows[j].d {
			return rows[i].d > rows[j].d
		}
		return rows[i].t.ID < rows[j].t.ID
	})

	out := make([]domain.TxnView, len(rows))
	for i, r := range rows {
		out[i] = domain.NewTxnView(r.t, now)
	}
	return out
}

func matches(t domain.Transaction, needle string) bool {
	if strings.Contains(strings.ToLower(t.ID), needle) {
		return true
	}
	for _, f := range t.LastEvent.SearchFields() {
		if f != "" && strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
