package types

import "time"

// Fingerprint is the cached semantic summary of a branch: the element-wise
// mean of every embedding reachable from the branch head, plus how many
// embeddings contributed. It is derived state — recomputed wholesale by
// bootstrap, never incrementally maintained — so staleness is expected.
type Fingerprint struct {
	TenantID    string    `json:"tenant_id"`
	BranchName  string    `json:"branch_name"`
	Centroid    []float32 `json:"centroid"`
	CommitCount int       `json:"commit_count"`
	LastUpdated time.Time `json:"last_updated"`
}

// BranchScore is one row of a routing ranking: how similar a candidate
// embedding is to a branch's centroid.
type BranchScore struct {
	Branch      string  `json:"branch"`
	Similarity  float64 `json:"similarity"`
	CommitCount int     `json:"commit_count"`
}

// RoutingSuggestion is the advisory result of checking content against the
// branch fingerprints. It never blocks a commit.
type RoutingSuggestion struct {
	RequestedBranch string        `json:"requested_branch"`
	SuggestedBranch string        `json:"suggested_branch"`
	IsMismatch      bool          `json:"is_mismatch"`
	Confidence      float64       `json:"confidence"`
	ConfidenceGap   float64       `json:"confidence_gap"`
	AllScores       []BranchScore `json:"all_scores,omitempty"`
	Message         string        `json:"message,omitempty"`
}

// BootstrapResult reports the outcome of recomputing one branch's centroid.
// Branches with no embedded commits are skipped, not failed.
type BootstrapResult struct {
	Branch               string `json:"branch"`
	CommitsWithEmbedding int    `json:"commits_with_embeddings"`
	Status               string `json:"status"` // "computed" or "skipped_no_embeddings"
}
