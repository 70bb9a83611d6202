package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edgard/cupidbot/internal/model"
)

const (
	hingeBaseURL    = "https://prod-api.hingeaws.net"
	hingeSessionTTL = 3 * 24 * time.Hour
)

type hinge struct {
	*apiClient
}

func newHinge(baseURL string, httpClient *http.Client, creds *CredentialStore, log *slog.Logger) *hinge {
	if baseURL == "" {
		baseURL = hingeBaseURL
	}
	return &hinge{newAPIClient(Hinge, baseURL, httpClient, creds, log, func(token string) (string, string) {
		return "Authorization", "Bearer " + token
	})}
}

type hingePrompt struct {
	PromptType string `json:"prompt_type"`
	Answer     string `json:"answer"`
}

type hingeProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	Age       int    `json:"age"`
	Photos    []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"photos"`
	Work struct {
		Position    string `json:"position"`
		CompanyName string `json:"company_name"`
	} `json:"work"`
	Education []struct {
		SchoolName string `json:"school_name"`
	} `json:"education"`
	Location struct {
		City string `json:"city"`
	} `json:"location"`
	Vitals  map[string]string `json:"vitals"`
	Prompts []hingePrompt     `json:"prompts"`
}

type hingeChannel struct {
	ChannelURL   string `json:"channel_url"`
	SubjectID    string `json:"subject_id"`
	LastActivity string `json:"last_message_at"`
}

type hingeMessage struct {
	MessageID string `json:"message_id"`
	User      struct {
		UserID string `json:"user_id"`
	} `json:"user"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// Authenticate accepts an existing bearer token or completes phone verification.
func (h *hinge) Authenticate(ctx context.Context, req AuthRequest) error {
	var resp struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}

	switch {
	case req.Token != "":
		var me struct {
			ID string `json:"id"`
		}
		if err := h.callWithToken(ctx, req.Token, http.MethodGet, "/users/me", nil, nil, &me); err != nil {
			h.log.ErrorContext(ctx, "Authentication failed", "error", err)
			return fmt.Errorf("hinge authentication failed: %w", err)
		}
		resp.Token, resp.UserID = req.Token, me.ID
	case req.PhoneNumber != "" && req.VerificationCode != "":
		body := map[string]string{"phone_number": req.PhoneNumber, "code": req.VerificationCode}
		if err := h.callWithToken(ctx, "", http.MethodPost, "/identity/verify", nil, body, &resp); err != nil {
			h.log.ErrorContext(ctx, "Verification failed", "error", err)
			return fmt.Errorf("hinge verification failed: %w", err)
		}
		if resp.Token == "" {
			return errors.New("hinge verification returned no token")
		}
	default:
		return errors.New("hinge: a token or a phone number with verification code is required")
	}

	h.storeSession(ctx, Credentials{Token: resp.Token, Expiry: h.now().Add(hingeSessionTTL), UserID: resp.UserID})
	h.log.InfoContext(ctx, "Authenticated", "user_id", resp.UserID)
	return nil
}

func (h *hinge) GetMatches(ctx context.Context, limit int) ([]model.Profile, error) {
	var resp struct {
		Results []struct {
			SubjectID string          `json:"subject_id"`
			Profile   json.RawMessage `json:"profile"`
		} `json:"results"`
	}
	if err := h.call(ctx, http.MethodGet, "/relationships", limitQuery("limit", limit), nil, &resp); err != nil {
		return nil, err
	}

	profiles := make([]model.Profile, 0, len(resp.Results))
	for _, r := range resp.Results {
		p, err := h.NormalizeProfile(r.Profile)
		if err != nil {
			h.log.WarnContext(ctx, "Skipping unreadable match", "subject_id", r.SubjectID, "error", err)
			continue
		}
		if p.PlatformID == "" {
			p.PlatformID = r.SubjectID
			p.ID = matchKey(Hinge, r.SubjectID)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (h *hinge) GetConversations(ctx context.Context, limit int) ([]RemoteConversation, error) {
	var resp struct {
		Channels []hingeChannel `json:"channels"`
	}
	if err := h.call(ctx, http.MethodGet, "/chat/channels", limitQuery("limit", limit), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]RemoteConversation, 0, len(resp.Channels))
	for _, c := range resp.Channels {
		out = append(out, RemoteConversation{
			ID:           c.ChannelURL,
			MatchID:      matchKey(Hinge, c.SubjectID),
			LastActivity: parseTimestamp(c.LastActivity),
		})
	}
	return out, nil
}

func (h *hinge) GetMessages(ctx context.Context, conversationRef string, limit int) ([]model.Message, error) {
	var resp struct {
		Messages []hingeMessage `json:"messages"`
	}
	path := "/chat/channels/" + url.PathEscape(conversationRef) + "/messages"
	if err := h.call(ctx, http.MethodGet, path, limitQuery("limit", limit), nil, &resp); err != nil {
		return nil, err
	}

	self := h.currentSession().UserID
	messages := make([]model.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		sender := model.SenderMatch
		if m.User.UserID == self {
			sender = model.SenderUser
		}
		messages = append(messages, model.Message{
			Sender:     sender,
			Content:    m.Message,
			SentAt:     parseTimestamp(m.CreatedAt),
			PlatformID: m.MessageID,
		})
	}
	return latestChronological(messages, limit), nil
}

// SendMessage posts to the chat channel identified by matchID.
func (h *hinge) SendMessage(ctx context.Context, matchID, text string) error {
	body := map[string]string{"message": text}
	path := "/chat/channels/" + url.PathEscape(matchID) + "/messages"
	if err := h.call(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("hinge send failed: %w", err)
	}
	return nil
}

func (h *hinge) NormalizeProfile(raw json.RawMessage) (model.Profile, error) {
	var p hingeProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Profile{}, fmt.Errorf("invalid hinge profile: %w", err)
	}

	out := model.Profile{
		PlatformID:  p.ID,
		Platform:    Hinge,
		Name:        p.FirstName,
		Age:         p.Age,
		Job:         model.Job{Title: p.Work.Position, Company: p.Work.CompanyName},
		Location:    p.Location.City,
		LastUpdated: h.now().UTC(),
		Active:      true,
	}
	if p.ID != "" {
		out.ID = matchKey(Hinge, p.ID)
	}
	for _, ph := range p.Photos {
		if ph.URL != "" {
			out.Photos = append(out.Photos, ph.URL)
		}
	}
	var schools []string
	for _, e := range p.Education {
		if e.SchoolName != "" {
			schools = append(schools, e.SchoolName)
		}
	}
	out.Education = strings.Join(schools, ", ")

	for _, key := range []string{"drinking", "smoking", "religion", "politics"} {
		if v := p.Vitals[key]; v != "" {
			out.Interests = append(out.Interests, fmt.Sprintf("%s: %s", strings.ToUpper(key[:1])+key[1:], v))
		}
	}
	var bio []string
	for _, pr := range p.Prompts {
		answer := strings.TrimSpace(pr.Answer)
		if answer == "" {
			continue
		}
		out.Interests = append(out.Interests, answer)
		bio = append(bio, pr.PromptType+": "+answer)
	}
	out.Bio = strings.Join(bio, "\n")
	return out, nil
}
