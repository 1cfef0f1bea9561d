package room

// LedgerEntry records one accepted move for score reconstruction and the
// end-of-room reconciliation with the persistence layer.
type LedgerEntry struct {
	PlayerID string
	Position int
	Word     string
	Delta    int
	// Seq is the sequence number the move produced.
	Seq uint64
}

// Ledger is the append-only score trail for one room. It is written only
// inside the room's run loop.
type Ledger struct {
	entries []LedgerEntry
}

// Append records an accepted move.
func (l *Ledger) Append(e LedgerEntry) {
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the recorded moves in acceptance order.
func (l *Ledger) Entries() []LedgerEntry {
	out := make([]LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded moves.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// TotalFor returns the summed deltas for one player.
func (l *Ledger) TotalFor(playerID string) int {
	total := 0
	for _, e := range l.entries {
		if e.PlayerID == playerID {
			total += e.Delta
		}
	}
	return total
}

// Totals returns every player's summed deltas.
func (l *Ledger) Totals() map[string]int {
	totals := make(map[string]int)
	for _, e := range l.entries {
		totals[e.PlayerID] += e.Delta
	}
	return totals
}
