package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/cupidbot/internal/model"
)

const (
	tinderBaseURL = "https://api.gotinder.com"
	// Tinder has no refresh flow; tokens are treated as good for four days.
	tinderSessionTTL = 4 * 24 * time.Hour
)

type tinder struct {
	*apiClient
}

func newTinder(baseURL string, httpClient *http.Client, creds *CredentialStore, log *slog.Logger) *tinder {
	if baseURL == "" {
		baseURL = tinderBaseURL
	}
	return &tinder{newAPIClient(Tinder, baseURL, httpClient, creds, log, func(token string) (string, string) {
		return "X-Auth-Token", token
	})}
}

type tinderName struct {
	Name string `json:"name"`
}

type tinderPerson struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	BirthDate string `json:"birth_date"`
	Photos    []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"photos"`
	Jobs []struct {
		Title   tinderName `json:"title"`
		Company tinderName `json:"company"`
	} `json:"jobs"`
	Schools       []tinderName `json:"schools"`
	InterestsV3   []tinderName `json:"interests_v3"`
	UserInterests struct {
		SelectedInterests []tinderName `json:"selected_interests"`
	} `json:"user_interests"`
	DistanceMi float64 `json:"distance_mi"`
}

type tinderMatch struct {
	ID           string          `json:"_id"`
	Person       json.RawMessage `json:"person"`
	LastActivity string          `json:"last_activity_date"`
}

type tinderMessage struct {
	ID       string `json:"_id"`
	From     string `json:"from"`
	Message  string `json:"message"`
	SentDate string `json:"sent_date"`
}

func (t *tinder) Authenticate(ctx context.Context, req AuthRequest) error {
	token := req.Token
	if token == "" {
		token = t.currentSession().Token
	}
	if token == "" {
		return errors.New("tinder: an auth token is required")
	}

	var me struct {
		ID string `json:"_id"`
	}
	if err := t.callWithToken(ctx, token, http.MethodGet, "/profile", nil, nil, &me); err != nil {
		t.log.ErrorContext(ctx, "Authentication failed", "error", err)
		return fmt.Errorf("tinder authentication failed: %w", err)
	}

	t.storeSession(ctx, Credentials{Token: token, Expiry: t.now().Add(tinderSessionTTL), UserID: me.ID})
	t.log.InfoContext(ctx, "Authenticated", "user_id", me.ID)
	return nil
}

func (t *tinder) fetchMatches(ctx context.Context, limit int) ([]tinderMatch, error) {
	var resp struct {
		Data struct {
			Matches []tinderMatch `json:"matches"`
		} `json:"data"`
	}
	if err := t.call(ctx, http.MethodGet, "/v2/matches", limitQuery("count", limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Matches, nil
}

func (t *tinder) GetMatches(ctx context.Context, limit int) ([]model.Profile, error) {
	matches, err := t.fetchMatches(ctx, limit)
	if err != nil {
		return nil, err
	}

	profiles := make([]model.Profile, 0, len(matches))
	for _, m := range matches {
		p, err := t.NormalizeProfile(m.Person)
		if err != nil {
			t.log.WarnContext(ctx, "Skipping unreadable match", "match_id", m.ID, "error", err)
			continue
		}
		// Messages and sends are keyed by the match id, not the person id.
		p.PlatformID = m.ID
		p.ID = matchKey(Tinder, m.ID)
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Tinder matches double as conversations.
func (t *tinder) GetConversations(ctx context.Context, limit int) ([]RemoteConversation, error) {
	matches, err := t.fetchMatches(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RemoteConversation, 0, len(matches))
	for _, m := range matches {
		out = append(out, RemoteConversation{
			ID:           m.ID,
			MatchID:      matchKey(Tinder, m.ID),
			LastActivity: parseTimestamp(m.LastActivity),
		})
	}
	return out, nil
}

func (t *tinder) GetMessages(ctx context.Context, conversationRef string, limit int) ([]model.Message, error) {
	var resp struct {
		Data struct {
			Messages []tinderMessage `json:"messages"`
		} `json:"data"`
	}
	path := "/v2/matches/" + url.PathEscape(conversationRef) + "/messages"
	if err := t.call(ctx, http.MethodGet, path, limitQuery("count", limit), nil, &resp); err != nil {
		return nil, err
	}

	self := t.currentSession().UserID
	messages := make([]model.Message, 0, len(resp.Data.Messages))
	for _, m := range resp.Data.Messages {
		sender := model.SenderMatch
		if m.From == self {
			sender = model.SenderUser
		}
		messages = append(messages, model.Message{
			Sender:     sender,
			Content:    m.Message,
			SentAt:     parseTimestamp(m.SentDate),
			PlatformID: m.ID,
			MatchID:    matchKey(Tinder, conversationRef),
		})
	}
	return latestChronological(messages, limit), nil
}

func (t *tinder) SendMessage(ctx context.Context, matchID, text string) error {
	body := map[string]string{"message": text}
	if err := t.call(ctx, http.MethodPost, "/user/matches/"+url.PathEscape(matchID), nil, body, nil); err != nil {
		return fmt.Errorf("tinder send failed: %w", err)
	}
	return nil
}

func (t *tinder) NormalizeProfile(raw json.RawMessage) (model.Profile, error) {
	var p tinderPerson
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Profile{}, fmt.Errorf("invalid tinder profile: %w", err)
	}

	out := model.Profile{
		ID:          matchKey(Tinder, p.ID),
		PlatformID:  p.ID,
		Platform:    Tinder,
		Name:        p.Name,
		Bio:         p.Bio,
		Age:         ageFrom(p.BirthDate, t.now()),
		LastUpdated: t.now().UTC(),
		Active:      true,
	}
	for _, ph := range p.Photos {
		if ph.URL != "" {
			out.Photos = append(out.Photos, ph.URL)
		}
	}
	for _, j := range p.Jobs {
		if j.Title.Name != "" {
			out.Job.Title = j.Title.Name
		}
		if j.Company.Name != "" {
			out.Job.Company = j.Company.Name
		}
	}
	var schools []string
	for _, s := range p.Schools {
		if s.Name != "" {
			schools = append(schools, s.Name)
		}
	}
	out.Education = strings.Join(schools, ", ")

	interests := p.InterestsV3
	if len(interests) == 0 {
		interests = p.UserInterests.SelectedInterests
	}
	for _, in := range interests {
		if in.Name != "" {
			out.Interests = append(out.Interests, in.Name)
		}
	}
	if p.DistanceMi > 0 {
		out.Location = fmt.Sprintf("%.0f miles away", p.DistanceMi)
	}
	return out, nil
}

// parseTimestamp accepts RFC 3339 strings and epoch milliseconds. Anything
// else yields the zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

func ageFrom(birthDate string, now time.Time) int {
	birth := parseTimestamp(birthDate)
	if birth.IsZero() {
		return 0
	}
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return max(age, 0)
}

// latestChronological sorts by send time and keeps the last limit entries.
func latestChronological(messages []model.Message, limit int) []model.Message {
	slices.SortStableFunc(messages, func(a, b model.Message) int {
		return a.SentAt.Compare(b.SentAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages
}
