package detector

import (
	"math"
	"strings"
)

// tokenize lowercases and splits text on whitespace, trimming punctuation
// from token edges. Cheap and deterministic on purpose.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// verbatimOverlap returns the length of the longest shared token run between
// output and sample, as a fraction of the shorter sequence.
func verbatimOverlap(output, sample []string) float64 {
	if len(output) == 0 || len(sample) == 0 {
		return 0
	}

	// Longest common substring over tokens.
	prev := make([]int, len(sample)+1)
	longest := 0
	for i := 1; i <= len(output); i++ {
		cur := make([]int, len(sample)+1)
		for j := 1; j <= len(sample); j++ {
			if output[i-1] == sample[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > longest {
					longest = cur[j]
				}
			}
		}
		prev = cur
	}

	shorter := len(output)
	if len(sample) < shorter {
		shorter = len(sample)
	}
	return float64(longest) / float64(shorter)
}

// tokenEntropy is the Shannon entropy of the token distribution, used as a
// rarity signal and as part of the behavioral fingerprint.
func tokenEntropy(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}

	counts := make(map[string]int)
	for _, t := range tokens {
		counts[t]++
	}

	total := float64(len(tokens))
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func vocabSize(tokens []string) int {
	vocab := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		vocab[t] = struct{}{}
	}
	return len(vocab)
}
