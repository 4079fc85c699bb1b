package evaluation

import "context"

// Answer is the output of answer generation.
type Answer struct {
	Text      string
	Citations []string
}

// ServiceClient is the boundary to the external answer and similarity
// services. Implementations classify failures by wrapping
// ErrTransientService or ErrPermanentService.
type ServiceClient interface {
	// GenerateAnswer produces an answer and its cited sources for a question.
	GenerateAnswer(ctx context.Context, question string) (*Answer, error)

	// ScoreTextSimilarity rates how close two texts are, in [0, 1].
	ScoreTextSimilarity(ctx context.Context, a, b string) (float64, error)

	// ScoreListSimilarity rates how close two lists of strings are, in [0, 1].
	ScoreListSimilarity(ctx context.Context, a, b []string) (float64, error)
}

// Describer is implemented by clients that can name the models they call.
// The gateway records the description in each result's metadata.
type Describer interface {
	Describe() map[string]string
}
