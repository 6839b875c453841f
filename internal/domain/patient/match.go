package patient

import (
	"fmt"

	"github.com/google/uuid"
)

// MatchOutcome classifies what a duplicate check decided.
type MatchOutcome string

const (
	// MatchNone means no existing record conflicts; the write may proceed.
	MatchNone MatchOutcome = "none"
	// MatchBlock means an existing record carries the same identity; the
	// write is refused.
	MatchBlock MatchOutcome = "block"
	// MatchUpdate means an import row matched an existing record whose
	// mutable fields differ; the batch reconciler updates it in place.
	MatchUpdate MatchOutcome = "update"
)

// Verdict is the result of one duplicate check. Built fresh per call,
// never persisted.
type Verdict struct {
	Outcome       MatchOutcome `json:"outcome"`
	Existing      *Patient     `json:"existing,omitempty"`
	ChangedFields []string     `json:"changed_fields,omitempty"`
}

// DuplicateError refuses a write because an existing record already
// carries the incoming identity.
type DuplicateError struct {
	Existing *Patient
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("patient %q already registered for this doctor", e.Existing.FullName)
}

// identityMatches decides whether an incoming identity collides with one
// existing record. The names must be equal after normalization; the
// phones then settle it:
//
//	both present, equal      -> match
//	both absent              -> match (nothing left to tell them apart)
//	both present, different  -> no match (same name, two people)
//	existing absent, new set -> match (phone arriving for a known person)
//	existing set, new absent -> no match (a bare name does not claim a
//	                            record that holds a phone)
//
// The last two rows are not symmetric. That asymmetry is part of the
// policy; do not unify them.
func identityMatches(in, existing Identity) bool {
	if in.Name != existing.Name {
		return false
	}
	switch {
	case in.HasPhone() && existing.HasPhone():
		return in.Phone == existing.Phone
	case !in.HasPhone() && !existing.HasPhone():
		return true
	case in.HasPhone():
		return true
	default:
		return false
	}
}

// findMatch scans the pool in order and returns the first record whose
// identity collides with the incoming one, plus the total number of
// colliding records. excludeID drops the record being edited from
// consideration.
func findMatch(in Identity, pool []*Patient, excludeID *uuid.UUID) (*Patient, int) {
	var first *Patient
	matches := 0
	for _, cand := range pool {
		if excludeID != nil && cand.ID == *excludeID {
			continue
		}
		if !identityMatches(in, cand.Identity()) {
			continue
		}
		if first == nil {
			first = cand
		}
		matches++
	}
	return first, matches
}
