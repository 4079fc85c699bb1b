package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{-1, 0}))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosine(nil, nil))
}

func TestListSimilarity(t *testing.T) {
	x := []float32{1, 0}
	y := []float32{0, 1}

	assert.Equal(t, 1.0, listSimilarity(nil, nil))
	assert.Equal(t, 0.0, listSimilarity([][]float32{x}, nil))
	assert.Equal(t, 0.0, listSimilarity(nil, [][]float32{x}))
	assert.InDelta(t, 1, listSimilarity([][]float32{x, y}, [][]float32{y, x}), 1e-9)
	assert.InDelta(t, 0, listSimilarity([][]float32{x}, [][]float32{y}), 1e-9)

	// {x} vs {x,y}: forward 1, backward (1+0)/2
	assert.InDelta(t, 0.75, listSimilarity([][]float32{x}, [][]float32{x, y}), 1e-9)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`  {"a":1} `))
}
