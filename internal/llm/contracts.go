package llm

import "context"

// DefectItem is a single defect fragment extracted from a comment.
type DefectItem struct {
	Text string `json:"text"`
}

// SplitResult holds the defects for one input comment, in extraction order.
type SplitResult struct {
	Defects []DefectItem `json:"defects"`
}

// ClassifyItem is one defect plus the candidate categories the model must
// choose from.
type ClassifyItem struct {
	Defect     string
	Candidates []string
}

// ClassifyResult is the model's pick for one item. The caller validates
// Chosen against the candidate list; the client only guarantees shape.
type ClassifyResult struct {
	Chosen string `json:"chosen"`
}

// Client is the boundary the pipeline depends on. One call covers exactly
// one batch; batching, caching and retries live with the callers.
type Client interface {
	// Split returns one result per input comment, in input order. An entry
	// may carry zero defects.
	Split(ctx context.Context, comments []string) ([]SplitResult, error)
	// Classify returns one result per input item, in input order.
	Classify(ctx context.Context, items []ClassifyItem) ([]ClassifyResult, error)
}
