package tracker

import (
	"testing"
	"time"

	"github.com/V4T54L/txn-watch/internal/domain"
)

func txn(id string, firstMs, completedMs int, last domain.TxnEvent) domain.Transaction {
	t := domain.Transaction{ID: id, FirstSeen: at(firstMs), LastUpdate: at(firstMs), LastEvent: last}
	if completedMs >= 0 {
		t.CompletedAt = at(completedMs)
		t.FinalStatus = "success"
	}
	return t
}

func ids(views []domain.TxnView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestProject_Threshold(t *testing.T) {
	now := at(100000)
	txns := []domain.Transaction{
		txn("short", 80000, -1, domain.TxnEvent{}), // 20s active
		txn("long", 55000, -1, domain.TxnEvent{}),  // 45s active
	}

	got := Project(txns, 30, "", now)
	if !equal(ids(got), []string{"long"}) {
		t.Fatalf("expected only the 45s transaction, got %v", ids(got))
	}
	if got[0].DurationMs != 45000 {
		t.Errorf("expected duration 45000ms, got %d", got[0].DurationMs)
	}

	if all := Project(txns, 0, "", now); len(all) != 2 {
		t.Errorf("threshold 0 must keep everything, got %d", len(all))
	}

	exact := Project(txns, 45, "", now)
	if !equal(ids(exact), []string{"long"}) {
		t.Errorf("duration equal to threshold must be kept, got %v", ids(exact))
	}
}

func TestProject_SortOrder(t *testing.T) {
	now := at(100000)
	txns := []domain.Transaction{
		txn("b", 90000, -1, domain.TxnEvent{}),    // 10s
		txn("c", 0, 30000, domain.TxnEvent{}),     // 30s fixed
		txn("a", 90000, -1, domain.TxnEvent{}),    // 10s tie
		txn("d", 40000, -1, domain.TxnEvent{}),    // 60s
		txn("e", 99000, 99500, domain.TxnEvent{}), // 0.5s
	}

	got := Project(txns, 0, "", now)
	want := []string{"d", "c", "a", "b", "e"}
	if !equal(ids(got), want) {
		t.Fatalf("got order %v, want %v", ids(got), want)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].DurationMs < got[i].DurationMs {
			t.Errorf("list not sorted descending at %d", i)
		}
	}
}

func TestProject_Filter(t *testing.T) {
	now := at(10000)
	txns := []domain.Transaction{
		txn("TID-alpha", 0, -1, domain.TxnEvent{Hnm: "bdolitutapp1.telkom.co.za", Uid: "Kgopajt"}),
		txn("TID-beta", 0, -1, domain.TxnEvent{Fid: "_log_QueryProviderEmployees", Severity: "WARN"}),
		txn("TID-gamma", 0, -1, domain.TxnEvent{Msg: "Transaction ended with success", Mtp: "TrnEnd"}),
		txn("TID-delta", 0, -1, domain.TxnEvent{Eid: "sss", Cid: "PIGGYBACK"}),
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{filter: "", want: []string{"TID-alpha", "TID-beta", "TID-delta", "TID-gamma"}},
		{filter: "   ", want: []string{"TID-alpha", "TID-beta", "TID-delta", "TID-gamma"}},
		{filter: "ALPHA", want: []string{"TID-alpha"}},
		{filter: "telkom", want: []string{"TID-alpha"}},
		{filter: "kgopa", want: []string{"TID-alpha"}},
		{filter: "queryprovider", want: []string{"TID-beta"}},
		{filter: "warn", want: []string{"TID-beta"}},
		{filter: "ENDED WITH", want: []string{"TID-gamma"}},
		{filter: "trnend", want: []string{"TID-gamma"}},
		{filter: "piggy", want: []string{"TID-delta"}},
		{filter: " SSS ", want: []string{"TID-delta"}},
		{filter: "tid-", want: []string{"TID-alpha", "TID-beta", "TID-delta", "TID-gamma"}},
		{filter: "nomatch", want: []string{}},
	}

	for _, tt := range tests {
		t.Run("filter="+tt.filter, func(t *testing.T) {
			got := Project(txns, 0, tt.filter, now)
			if !equal(ids(got), tt.want) {
				t.Errorf("got %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestProject_DoesNotMutateInput(t *testing.T) {
	now := at(10000)
	txns := []domain.Transaction{
		txn("a", 9000, -1, domain.TxnEvent{}),
		txn("b", 0, -1, domain.TxnEvent{}),
	}
	Project(txns, 0, "", now)
	if txns[0].ID != "a" || txns[1].ID != "b" {
		t.Errorf("input reordered: %v %v", txns[0].ID, txns[1].ID)
	}
}

func TestProject_CompletedDurationIsFixed(t *testing.T) {
	txns := []domain.Transaction{txn("A", 0, 5000, domain.TxnEvent{})}
	for _, now := range []time.Time{at(5000), at(50000), at(500000)} {
		got := Project(txns, 0, "", now)
		if got[0].DurationMs != 5000 || got[0].Active {
			t.Errorf("at %v: got %+v", now, got[0])
		}
	}
}
