// Package analytics computes conversation flow metrics, rule-based insights
// and activity histograms. The functions are pure and expect messages in
// chronological order; Service wires them to storage.
package analytics

import (
	"strings"

	"github.com/edgard/cupidbot/internal/model"
)

// Sentiment is the keyword-based mood of a conversation.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Flow summarises the dynamics of a conversation.
type Flow struct {
	EngagementLevel float64   `json:"engagement_level"`
	ResponseRate    float64   `json:"response_rate"`
	AvgResponseTime float64   `json:"avg_response_time_seconds"`
	MessageCount    int       `json:"message_count"`
	TopicsDiscussed []string  `json:"topics_discussed"`
	Sentiment       Sentiment `json:"sentiment"`
}

// AnalyzeFlow computes the Flow of a chronological message list.
func AnalyzeFlow(messages []model.Message) Flow {
	user, match := countSenders(messages)

	f := Flow{
		MessageCount:    len(messages),
		ResponseRate:    ratio(match, user),
		AvgResponseTime: avgResponseSeconds(messages),
		TopicsDiscussed: []string{},
		Sentiment:       SentimentNeutral,
	}
	f.EngagementLevel = min(1, max(0, float64(f.MessageCount)/10*f.ResponseRate))

	var pos, neg int
	for _, m := range messages {
		text := strings.ToLower(m.Content)
		f.TopicsDiscussed = appendUnique(f.TopicsDiscussed, topicsIn(text)...)
		pos += countContained(text, positiveWords)
		neg += countContained(text, negativeWords)
	}
	switch {
	case pos > 2*neg:
		f.Sentiment = SentimentPositive
	case neg > 2*pos:
		f.Sentiment = SentimentNegative
	}
	return f
}

// RecentTopics returns the topics discussed in the last n messages.
func RecentTopics(messages []model.Message, n int) []string {
	if n < len(messages) {
		messages = messages[len(messages)-n:]
	}
	topics := []string{}
	for _, m := range messages {
		topics = appendUnique(topics, topicsIn(strings.ToLower(m.Content))...)
	}
	return topics
}

func countSenders(messages []model.Message) (user, match int) {
	for _, m := range messages {
		switch m.Sender {
		case model.SenderUser:
			user++
		case model.SenderMatch:
			match++
		}
	}
	return user, match
}

// ratio returns num/den clamped to [0, 1], and 0 for a zero denominator.
func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return min(1, max(0, float64(num)/float64(den)))
}

// avgResponseSeconds averages the positive gaps between adjacent messages
// from different senders, ignoring messages without timestamps.
func avgResponseSeconds(messages []model.Message) float64 {
	var total float64
	var n int
	for i := 1; i < len(messages); i++ {
		prev, cur := messages[i-1], messages[i]
		if prev.Sender == cur.Sender || !prev.HasTimestamp() || !cur.HasTimestamp() {
			continue
		}
		if delta := cur.SentAt.Sub(prev.SentAt).Seconds(); delta > 0 {
			total += delta
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
