// Package notifier posts matchmaking announcements to a chat webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aimd54/ranked-matchmaking/internal/config"
	"github.com/aimd54/ranked-matchmaking/internal/metrics"
	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

const botUsername = "Ranked Matchmaking"

// Client handles webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new webhook client.
func NewClient(cfg *config.NotificationsConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Message represents a webhook message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents an attachment field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage posts a message to the webhook.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Notifications are disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}
	if msg.Username == "" {
		msg.Username = botUsername
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent webhook message")

	return nil
}

// NotifyMatchFound announces a freshly materialized ranked match.
func (c *Client) NotifyMatchFound(ctx context.Context, competition *models.Competition, first, second *models.QueueEntry) error {
	if !c.enabled {
		return nil
	}

	err := c.SendMessage(ctx, &Message{
		Text: fmt.Sprintf("⚔️ **Match found**: @%s vs @%s", first.UserID, second.UserID),
		Attachments: []Attachment{{
			Fallback: competition.Name,
			Color:    "#2196F3",
			Title:    competition.Name,
			Text:     competition.Description,
			Fields: []Field{
				{Short: true, Title: "Format", Value: strings.ToUpper(competition.CompetitionType)},
				{Short: true, Title: "Average XP", Value: fmt.Sprintf("%d", competition.AverageXP)},
				{Short: true, Title: "XP Range", Value: fmt.Sprintf("%d - %d", competition.XPRangeMin, competition.XPRangeMax)},
				{Short: true, Title: "Duration", Value: fmt.Sprintf("%dh", competition.DurationHours)},
			},
			Footer: "Accept or decline from the queue screen",
		}},
	})
	if err != nil {
		metrics.RecordNotificationFailed("match_found")
		return err
	}
	return nil
}

// NotifyRankUp announces a promotion to a higher rank tier.
func (c *Client) NotifyRankUp(ctx context.Context, userID, fromRank, toRank string, xp int) error {
	if !c.enabled {
		return nil
	}

	err := c.SendMessage(ctx, &Message{
		Text: fmt.Sprintf("🏆 @%s ranked up from **%s** to **%s** (%d XP)", userID, fromRank, toRank, xp),
	})
	if err != nil {
		metrics.RecordNotificationFailed("rank_up")
		return err
	}
	return nil
}
