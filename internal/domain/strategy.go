package domain

import (
	"time"

	"github.com/google/uuid"
)

type StrategyScopeType string

const (
	ScopeGlobal   StrategyScopeType = "global"
	ScopeTenant   StrategyScopeType = "tenant"
	ScopeProject  StrategyScopeType = "project"
	ScopeWorkflow StrategyScopeType = "workflow"
)

func ValidScopeType(s string) bool {
	switch StrategyScopeType(s) {
	case ScopeGlobal, ScopeTenant, ScopeProject, ScopeWorkflow:
		return true
	}
	return false
}

// GlobalScopeID is the fixed scope_id used at global scope.
const GlobalScopeID = "global"

type StrategyStatus string

const (
	StrategyActive       StrategyStatus = "active"
	StrategyDeprecated   StrategyStatus = "deprecated"
	StrategyExperimental StrategyStatus = "experimental"
)

type StrategyCreator string

const (
	CreatorHuman  StrategyCreator = "human"
	CreatorAgent  StrategyCreator = "agent"
	CreatorSystem StrategyCreator = "system"
)

type RetrievalMode string

const (
	RetrievalFTSFirst    RetrievalMode = "fts_first"
	RetrievalVectorFirst RetrievalMode = "vector_first"
	RetrievalGraphFirst  RetrievalMode = "graph_first"
	RetrievalHybrid      RetrievalMode = "hybrid"
)

type RetrievalPolicy struct {
	Mode          RetrievalMode `json:"mode"`
	TopKDefault   int           `json:"top_k_default"`
	RerankEnabled bool          `json:"rerank_enabled"`
}

type ChunkingMode string

const (
	ChunkingSemantic  ChunkingMode = "semantic"
	ChunkingParagraph ChunkingMode = "paragraph"
	ChunkingSentence  ChunkingMode = "sentence"
	ChunkingFixed     ChunkingMode = "fixed"
)

type DocumentPolicy struct {
	ChunkingMode ChunkingMode `json:"chunking_mode"`
	ChunkSize    int          `json:"chunk_size"`
	Overlap      int          `json:"overlap"`
	MaxItemBytes int          `json:"max_item_bytes"`
}

type VectorPolicy struct {
	Enabled          bool    `json:"enabled"`
	EmbeddingModel   string  `json:"embedding_model"`
	ReindexThreshold float32 `json:"reindex_threshold"`
}

type GraphConstraintLevel string

const (
	GraphConstraintNone GraphConstraintLevel = "none"
	GraphConstraintSoft GraphConstraintLevel = "soft"
	GraphConstraintHard GraphConstraintLevel = "hard"
)

type GraphPolicy struct {
	Enabled         bool                 `json:"enabled"`
	EdgeTypes       []string             `json:"edge_types"`
	ConstraintLevel GraphConstraintLevel `json:"constraint_level"`
}

// DecayRule decays claim confidence for predicates matching the pattern.
type DecayRule struct {
	PredicatePattern string  `json:"predicate_pattern"`
	HalfLifeDays     int     `json:"half_life_days"`
	MinConfidence    float32 `json:"min_confidence"`
}

type ClaimPolicy struct {
	PredicateSet      []string    `json:"predicate_set"`
	ConflictThreshold float32     `json:"conflict_threshold"`
	DecayRules        []DecayRule `json:"decay_rules"`
}

type ArtifactPolicy struct {
	CanonicalWorkflows []string `json:"canonical_workflows"`
}

// MemoryStrategy is a versioned, scoped hypothesis about how knowledge
// should be organized: how documents are chunked, how retrieval works,
// which graph edges and claim predicates exist, and how confidence
// decays. Exactly one strategy is active per (scope_type, scope_id);
// prior versions are deprecated, never deleted, so the history stays
// queryable for rollback.
type MemoryStrategy struct {
	ID              uuid.UUID         `json:"id"`
	ScopeType       StrategyScopeType `json:"scope_type"`
	ScopeID         string            `json:"scope_id"`
	Version         int               `json:"version"`
	Status          StrategyStatus    `json:"status"`
	RetrievalPolicy RetrievalPolicy   `json:"retrieval_policy"`
	DocumentPolicy  DocumentPolicy    `json:"document_policy"`
	VectorPolicy    VectorPolicy      `json:"vector_policy"`
	GraphPolicy     GraphPolicy       `json:"graph_policy"`
	ClaimPolicy     ClaimPolicy       `json:"claim_policy"`
	ArtifactPolicy  ArtifactPolicy    `json:"artifact_policy"`
	CreatedBy       StrategyCreator   `json:"created_by"`
	Rationale       string            `json:"rationale"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ScopeKey identifies a strategy scope.
type ScopeKey struct {
	ScopeType StrategyScopeType
	ScopeID   string
}

// Scope returns the strategy's scope key.
func (m *MemoryStrategy) Scope() ScopeKey {
	return ScopeKey{ScopeType: m.ScopeType, ScopeID: m.ScopeID}
}

// Clone deep-copies the strategy so a proposed variant can be edited
// without touching the base.
func (m *MemoryStrategy) Clone() *MemoryStrategy {
	c := *m
	c.GraphPolicy.EdgeTypes = append([]string(nil), m.GraphPolicy.EdgeTypes...)
	c.ClaimPolicy.PredicateSet = append([]string(nil), m.ClaimPolicy.PredicateSet...)
	c.ClaimPolicy.DecayRules = append([]DecayRule(nil), m.ClaimPolicy.DecayRules...)
	c.ArtifactPolicy.CanonicalWorkflows = append([]string(nil), m.ArtifactPolicy.CanonicalWorkflows...)
	return &c
}

// DefaultStrategy returns the built-in global default used when no
// strategy has been configured anywhere in the scope chain.
func DefaultStrategy() *MemoryStrategy {
	return &MemoryStrategy{
		ScopeType: ScopeGlobal,
		ScopeID:   GlobalScopeID,
		Version:   1,
		Status:    StrategyActive,
		RetrievalPolicy: RetrievalPolicy{
			Mode:          RetrievalHybrid,
			TopKDefault:   20,
			RerankEnabled: false,
		},
		DocumentPolicy: DocumentPolicy{
			ChunkingMode: ChunkingFixed,
			ChunkSize:    500,
			Overlap:      50,
			MaxItemBytes: 1 << 20,
		},
		VectorPolicy: VectorPolicy{
			Enabled:          true,
			EmbeddingModel:   "text-embedding-3-small",
			ReindexThreshold: 0.1,
		},
		GraphPolicy: GraphPolicy{
			Enabled:         true,
			EdgeTypes:       []string{"mentions", "has_passage", "related_to"},
			ConstraintLevel: GraphConstraintSoft,
		},
		ClaimPolicy: ClaimPolicy{
			PredicateSet: []string{
				"prefers", "uses", "decided", "depends_on",
				"works_at", "founded", "located_in", "related_to",
			},
			ConflictThreshold: 0.5,
			DecayRules: []DecayRule{
				{PredicatePattern: "*", HalfLifeDays: 90, MinConfidence: 0.1},
			},
		},
		ArtifactPolicy: ArtifactPolicy{
			CanonicalWorkflows: []string{
				"entity_dossier_v1", "timeline_builder_v1", "contradiction_report_v1",
			},
		},
		CreatedBy: CreatorSystem,
		Rationale: "Built-in system default. No custom strategy has been configured.",
	}
}
