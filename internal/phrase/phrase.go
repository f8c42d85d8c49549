// Package phrase generates the recovery phrase that acts as the vault's sole
// irreplaceable credential.
//
// Words are drawn uniformly at random from a small embedded word list. The
// list is deliberately simple and carries no checksum word; interoperability
// with external recovery tooling is not a goal.
package phrase

import (
	"crypto/rand"
	_ "embed"
	"fmt"
	"math/big"
	"strings"
)

// WordCount is the number of words in a generated recovery phrase.
const WordCount = 12

//go:embed wordlist.txt
var rawWordlist string

var words = strings.Fields(rawWordlist)

// Generate returns a new recovery phrase of WordCount space-separated words.
func Generate() (string, error) {
	return GenerateN(WordCount)
}

// GenerateN returns a recovery phrase of n space-separated words drawn with
// crypto/rand. Indexes are picked with rand.Int to avoid modulo bias.
func GenerateN(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("phrase: invalid word count %d", n)
	}
	max := big.NewInt(int64(len(words)))
	picked := make([]string, n)
	for i := range picked {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("phrase: %w", err)
		}
		picked[i] = words[idx.Int64()]
	}
	return strings.Join(picked, " "), nil
}

// Words returns the size of the embedded word list.
func Words() int { return len(words) }

// Valid reports whether every word of the candidate phrase is in the list.
// It is a cheap sanity check for typos during recovery, not an authenticity
// check: the real verification is decrypting the vault.
func Valid(candidate string) bool {
	fields := strings.Fields(candidate)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !inList(f) {
			return false
		}
	}
	return true
}

func inList(w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}
