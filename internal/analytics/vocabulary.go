package analytics

import (
	"slices"
	"strings"

	"github.com/edgard/cupidbot/internal/model"
)

var (
	positiveWords = []string{"love", "like", "enjoy", "happy", "great", "good", "fun", "excited"}
	negativeWords = []string{"hate", "dislike", "bad", "sad", "boring", "annoying", "disappointed"}

	trackedEmojis = []string{"😊", "😂", "❤️"}

	stopWords = toSet(
		"the", "and", "a", "to", "of", "in", "is", "that", "it", "for", "you", "i", "with", "on", "are",
		"be", "this", "was", "have", "not", "but", "at", "by", "an", "or", "as", "what", "from", "your",
		"my", "so", "we", "they", "would", "could", "should", "will", "can", "do", "does", "did", "has",
		"had", "been", "were", "am", "if", "then", "no", "yes", "when", "how", "all", "any", "some",
		"there", "their", "his", "her", "him", "she", "he", "me", "them", "who", "which", "where", "why",
		"just", "very", "really", "too", "much", "more", "most", "also", "only", "even", "such", "because",
		"since", "while", "though", "although", "however", "therefore", "thus", "hence", "accordingly",
		"consequently", "otherwise", "instead", "meanwhile", "nonetheless", "nevertheless", "still", "yet",
		"anyway", "besides", "indeed", "moreover", "furthermore", "additionally",
	)
)

const tokenPunctuation = ".,!?;:()"

func toSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// topicsIn returns vocabulary topics appearing as substrings of text, which
// must already be lowercased.
func topicsIn(text string) []string {
	var out []string
	for _, topic := range model.TopicVocabulary {
		if strings.Contains(text, topic) {
			out = append(out, topic)
		}
	}
	return out
}

// countContained counts the words that appear at least once in text.
// Substring hits such as "unlike" for "like" are counted.
func countContained(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

func isStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(list, it) {
			list = append(list, it)
		}
	}
	return list
}
