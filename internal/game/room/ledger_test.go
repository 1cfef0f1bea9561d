package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerTotals(t *testing.T) {
	var l Ledger
	l.Append(LedgerEntry{PlayerID: "p1", Delta: 3, Seq: 1})
	l.Append(LedgerEntry{PlayerID: "p2", Delta: 5, Seq: 2})
	l.Append(LedgerEntry{PlayerID: "p1", Delta: 2, Seq: 3})

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 5, l.TotalFor("p1"))
	assert.Equal(t, 5, l.TotalFor("p2"))
	assert.Equal(t, 0, l.TotalFor("p3"))

	totals := l.Totals()
	assert.Equal(t, map[string]int{"p1": 5, "p2": 5}, totals)
}

func TestLedgerEntriesIsCopy(t *testing.T) {
	var l Ledger
	l.Append(LedgerEntry{PlayerID: "p1", Delta: 3, Seq: 1})

	entries := l.Entries()
	entries[0].Delta = 99

	assert.Equal(t, 3, l.TotalFor("p1"))
}

func TestLedgerPreservesAcceptanceOrder(t *testing.T) {
	var l Ledger
	for i := 1; i <= 5; i++ {
		l.Append(LedgerEntry{PlayerID: "p1", Delta: 1, Seq: uint64(i)})
	}
	entries := l.Entries()
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}
