package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/ragbench/internal/evaluation"
)

// MockServiceClient implements evaluation.ServiceClient for testing.
// Without Fn overrides it answers every question with Answer and scores
// every comparison with Score.
type MockServiceClient struct {
	GenerateAnswerFn      func(ctx context.Context, question string) (*evaluation.Answer, error)
	ScoreTextSimilarityFn func(ctx context.Context, a, b string) (float64, error)
	ScoreListSimilarityFn func(ctx context.Context, a, b []string) (float64, error)

	// Default response values
	Answer evaluation.Answer
	Score  float64

	mu        sync.Mutex
	questions []string
	textCalls int
	listCalls int
}

var _ evaluation.ServiceClient = (*MockServiceClient)(nil)

// NewMockServiceClient returns a client that always answers answer with the
// given citations and scores every comparison with score.
func NewMockServiceClient(answer string, citations []string, score float64) *MockServiceClient {
	return &MockServiceClient{
		Answer: evaluation.Answer{Text: answer, Citations: citations},
		Score:  score,
	}
}

// GenerateAnswer implements evaluation.ServiceClient.
func (m *MockServiceClient) GenerateAnswer(ctx context.Context, question string) (*evaluation.Answer, error) {
	m.mu.Lock()
	m.questions = append(m.questions, question)
	m.mu.Unlock()

	if m.GenerateAnswerFn != nil {
		return m.GenerateAnswerFn(ctx, question)
	}
	a := m.Answer
	return &a, nil
}

// ScoreTextSimilarity implements evaluation.ServiceClient.
func (m *MockServiceClient) ScoreTextSimilarity(ctx context.Context, a, b string) (float64, error) {
	m.mu.Lock()
	m.textCalls++
	m.mu.Unlock()

	if m.ScoreTextSimilarityFn != nil {
		return m.ScoreTextSimilarityFn(ctx, a, b)
	}
	return m.Score, nil
}

// ScoreListSimilarity implements evaluation.ServiceClient.
func (m *MockServiceClient) ScoreListSimilarity(ctx context.Context, a, b []string) (float64, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()

	if m.ScoreListSimilarityFn != nil {
		return m.ScoreListSimilarityFn(ctx, a, b)
	}
	return m.Score, nil
}

// Describe implements evaluation.Describer.
func (m *MockServiceClient) Describe() map[string]string {
	return map[string]string{"answer_model": "mock", "embedding_model": "mock"}
}

// Questions returns the questions passed to GenerateAnswer, in call order.
func (m *MockServiceClient) Questions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.questions...)
}

// GenerateAnswerCalls returns how many times GenerateAnswer was called.
func (m *MockServiceClient) GenerateAnswerCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.questions)
}

// ScoreCalls returns the number of text and list similarity calls.
func (m *MockServiceClient) ScoreCalls() (text, list int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.textCalls, m.listCalls
}
