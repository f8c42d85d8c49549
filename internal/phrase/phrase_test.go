package phrase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_WordCount(t *testing.T) {
	p, err := Generate()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(p), WordCount)
}

func TestGenerate_WordsFromList(t *testing.T) {
	p, err := Generate()
	require.NoError(t, err)
	assert.True(t, Valid(p))
}

func TestGenerate_NotRepeating(t *testing.T) {
	p1, err := Generate()
	require.NoError(t, err)
	p2, err := Generate()
	require.NoError(t, err)
	// 12 words over a 250+ word list: a collision here means broken entropy.
	assert.NotEqual(t, p1, p2)
}

func TestGenerateN_Invalid(t *testing.T) {
	_, err := GenerateN(0)
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("definitely-not-a-listed-word"))
	assert.True(t, Valid(words[0]+" "+words[len(words)-1]))
}

func TestWords_ListLoaded(t *testing.T) {
	assert.Greater(t, Words(), 200)
}
