package waveledger

// Record is a single wave stored in the ledger.
// Every field except OwnerApproved is fixed when the wave is appended.
type Record struct {
	Index         int     `json:"index"`
	Waver         Address `json:"waver"`
	Message       string  `json:"message"`
	Timestamp     int64   `json:"timestamp"` // Unix seconds, assigned by the ledger clock
	OwnerApproved bool    `json:"owner_approved"`
}

// VisibleTo reports whether viewer may see r under the moderation display policy:
// approved waves are public, the owner sees everything.
func (r Record) VisibleTo(viewer, owner Address) bool {
	return r.OwnerApproved || (!owner.IsZero() && viewer == owner)
}
