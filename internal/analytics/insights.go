package analytics

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/edgard/cupidbot/internal/model"
)

// Conversation stages.
const (
	StageInitial     = "initial"
	StageEarly       = "early"
	StageDeveloping  = "developing"
	StageEstablished = "established"
)

const (
	commonWordLimit         = 10
	slowResponseMinutes     = 720
	longMessageWords        = 50
	slowProgressionHours    = 48
	lowResponseRate         = 0.5
	minQuestionShare        = 0.2
	minCommonWordCharacters = 3
)

// ConversationStats are the counters behind a conversation's insights.
type ConversationStats struct {
	ConversationID    string  `json:"conversation_id"`
	MatchName         string  `json:"match_name"`
	Platform          string  `json:"platform"`
	MessageCount      int     `json:"message_count"`
	UserMessages      int     `json:"user_messages"`
	MatchMessages     int     `json:"match_messages"`
	UserResponseRate  float64 `json:"user_response_rate"`
	MatchResponseRate float64 `json:"match_response_rate"`
	DurationHours     float64 `json:"duration_hours"`
	DurationKnown     bool    `json:"duration_known"`
	AIGenerated       int     `json:"ai_generated"`
	AIApproved        int     `json:"ai_approved"`
	AIApprovalRate    float64 `json:"ai_approval_rate"`
}

// WordCount is one entry of the common-words ranking.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// InsightReport is the full insight output for one conversation.
type InsightReport struct {
	Stats                  ConversationStats `json:"stats"`
	Stage                  string            `json:"stage"`
	AvgMessageLength       float64           `json:"avg_message_length"`
	QuestionCount          int               `json:"question_count"`
	EmojiCount             int               `json:"emoji_count"`
	AvgResponseTimeMinutes float64           `json:"avg_response_time_minutes"`
	CommonWords            []WordCount       `json:"common_words"`
	Insights               []model.Insight   `json:"insights"`
}

// Stats computes counters for conv. match may be nil. The cached
// conversation message count is used when conv is set.
func Stats(conv *model.Conversation, match *model.Profile, messages []model.Message) ConversationStats {
	user, matchCount := countSenders(messages)
	s := ConversationStats{
		MessageCount:      len(messages),
		UserMessages:      user,
		MatchMessages:     matchCount,
		UserResponseRate:  ratio(user, matchCount),
		MatchResponseRate: ratio(matchCount, user),
	}

	if conv != nil {
		s.ConversationID = conv.ID
		s.Platform = conv.Platform
		s.MessageCount = conv.MessageCount
		if !conv.StartedAt.IsZero() && !conv.LastMessageAt.IsZero() && !conv.LastMessageAt.Before(conv.StartedAt) {
			s.DurationHours = conv.LastMessageAt.Sub(conv.StartedAt).Hours()
			s.DurationKnown = true
		}
	}
	if match != nil {
		s.MatchName = match.Name
	}

	for _, m := range messages {
		if m.AIGenerated {
			s.AIGenerated++
			if m.AIApproved {
				s.AIApproved++
			}
		}
	}
	s.AIApprovalRate = ratio(s.AIApproved, s.AIGenerated)
	return s
}

// StageFor classifies a conversation by message count.
func StageFor(count int) string {
	switch {
	case count > 50:
		return StageEstablished
	case count > 20:
		return StageDeveloping
	case count > 5:
		return StageEarly
	default:
		return StageInitial
	}
}

// Insights computes the insight report for a chronological message list.
func Insights(conv *model.Conversation, match *model.Profile, messages []model.Message) InsightReport {
	r := InsightReport{
		Stats:                  Stats(conv, match, messages),
		AvgResponseTimeMinutes: avgResponseSeconds(messages) / 60,
		CommonWords:            []WordCount{},
		Insights:               []model.Insight{},
	}
	r.Stage = StageFor(r.Stats.MessageCount)

	counts := map[string]int{}
	var order []string
	totalWords := 0
	for _, m := range messages {
		words := strings.Fields(m.Content)
		totalWords += len(words)
		for _, w := range words {
			w = strings.Trim(strings.ToLower(w), tokenPunctuation)
			if w == "" {
				continue
			}
			if _, seen := counts[w]; !seen {
				order = append(order, w)
			}
			counts[w]++
		}
		if strings.Contains(m.Content, "?") {
			r.QuestionCount++
		}
		for _, e := range trackedEmojis {
			r.EmojiCount += strings.Count(m.Content, e)
		}
	}
	if len(messages) > 0 {
		r.AvgMessageLength = float64(totalWords) / float64(len(messages))
	}
	r.CommonWords = commonWords(order, counts)
	r.Insights = rules(r)
	return r
}

// commonWords ranks words by frequency; ties keep first-seen order.
func commonWords(order []string, counts map[string]int) []WordCount {
	ranked := make([]WordCount, 0, len(order))
	for _, w := range order {
		if utf8.RuneCountInString(w) < minCommonWordCharacters || isStopWord(w) {
			continue
		}
		ranked = append(ranked, WordCount{Word: w, Count: counts[w]})
	}
	slices.SortStableFunc(ranked, func(a, b WordCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if len(ranked) > commonWordLimit {
		ranked = ranked[:commonWordLimit]
	}
	return ranked
}

func rules(r InsightReport) []model.Insight {
	s := r.Stats
	out := []model.Insight{}

	// Rates are only meaningful once both sides have written.
	if s.UserMessages > 0 && s.MatchMessages > 0 && s.MatchResponseRate < lowResponseRate {
		out = append(out, model.Insight{
			Type:    model.InsightWarning,
			Message: "Low response rate from match",
			Details: fmt.Sprintf("Match is responding to only %.1f%% of your messages", s.MatchResponseRate*100),
		})
	}
	if r.AvgResponseTimeMinutes > slowResponseMinutes {
		out = append(out, model.Insight{
			Type:    model.InsightInfo,
			Message: "Slow response time",
			Details: fmt.Sprintf("Average response time is %.1f hours", r.AvgResponseTimeMinutes/60),
		})
	}
	if float64(r.QuestionCount) < float64(s.MessageCount)*minQuestionShare {
		out = append(out, model.Insight{
			Type:    model.InsightSuggestion,
			Message: "Low question count",
			Details: "Try asking more questions to engage your match",
		})
	}
	if r.AvgMessageLength > longMessageWords {
		out = append(out, model.Insight{
			Type:    model.InsightSuggestion,
			Message: "Long messages",
			Details: "Your messages are quite long. Consider shorter, more focused messages",
		})
	}
	if r.Stage == StageEarly && s.DurationKnown && s.DurationHours > slowProgressionHours {
		out = append(out, model.Insight{
			Type:    model.InsightSuggestion,
			Message: "Slow conversation progression",
			Details: "Consider suggesting a meeting or phone call to move the conversation forward",
		})
	}
	return out
}
