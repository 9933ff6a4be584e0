package domain

import (
	"time"

	"github.com/google/uuid"
)

type ClaimSourceType string

const (
	ClaimSourceUserAsserted ClaimSourceType = "user_asserted"
	ClaimSourceInferred     ClaimSourceType = "inferred"
	ClaimSourceRetrieved    ClaimSourceType = "retrieved"
)

func ValidClaimSourceType(s string) bool {
	switch ClaimSourceType(s) {
	case ClaimSourceUserAsserted, ClaimSourceInferred, ClaimSourceRetrieved:
		return true
	}
	return false
}

func (s ClaimSourceType) InitialConfidence() float32 {
	switch s {
	case ClaimSourceUserAsserted:
		return 0.9
	case ClaimSourceRetrieved:
		return 0.7
	case ClaimSourceInferred:
		return 0.6
	default:
		return 0.5
	}
}

// Claim is the atomic unit of memory: a structured assertion about an
// entity, with supporting evidence and a confidence score. Claims are
// never deleted; contradictions are preserved by linking both sides via
// ConflictsWith. Merge retires a claim by pointing MergedInto at its
// survivor while keeping the record itself intact.
type Claim struct {
	ID                 uuid.UUID       `json:"id"`
	TenantID           uuid.UUID       `json:"tenant_id"`
	SubjectEntityID    uuid.UUID       `json:"subject_entity_id"`
	Predicate          string          `json:"predicate"`
	Object             string          `json:"object"`
	ObjectEntityID     *uuid.UUID      `json:"object_entity_id,omitempty"`
	EvidencePassageIDs []uuid.UUID     `json:"evidence_passage_ids"`
	SourceType         ClaimSourceType `json:"source_type"`
	Confidence         float32         `json:"confidence"`
	ConflictsWith      []uuid.UUID     `json:"conflicts_with"`
	ReinforcementCount int             `json:"reinforcement_count"`
	MergedInto         *uuid.UUID      `json:"merged_into,omitempty"`
	Embedding          []float32       `json:"-"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	// Version is bumped on every maintenance update. Optimistic
	// concurrency: writers that lose a race retry their whole pass.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConflictsWithClaim reports whether two claims contradict each other:
// same subject, same predicate, different object.
func (c *Claim) ConflictsWithClaim(other *Claim) bool {
	return c.ID != other.ID &&
		c.SubjectEntityID == other.SubjectEntityID &&
		c.Predicate == other.Predicate &&
		c.Object != other.Object
}

// ClaimConflict is one recorded conflict pair. Pairs are stored with
// ClaimA < ClaimB so each unordered pair exists exactly once.
type ClaimConflict struct {
	ID         uuid.UUID `json:"id"`
	ClaimA     uuid.UUID `json:"claim_a"`
	ClaimB     uuid.UUID `json:"claim_b"`
	DetectedAt time.Time `json:"detected_at"`
}

// ClaimMerge records a merge decision: which claims were folded into the
// survivor and why. Merges never erase the source claims.
type ClaimMerge struct {
	ID           uuid.UUID   `json:"id"`
	SurvivorID   uuid.UUID   `json:"survivor_id"`
	SupersededID []uuid.UUID `json:"superseded_ids"`
	Reason       string      `json:"reason"`
	CreatedAt    time.Time   `json:"created_at"`
}

// ClaimCandidate is an extracted but not yet admitted claim.
type ClaimCandidate struct {
	SubjectName string  `json:"subject_name"`
	Predicate   string  `json:"predicate"`
	Object      string  `json:"object"`
	Confidence  float32 `json:"confidence"`
}
