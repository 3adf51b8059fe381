package notify

import (
	"context"
	"fmt"
	"time"

	"mercari/monitor/internal/config"
	"mercari/monitor/internal/domain"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// Notifier pushes newly admitted listings to downstream channels.
// Delivery is best-effort: a failed webhook never fails the sweep.
type Notifier interface {
	NotifyNewProducts(ctx context.Context, products []domain.Product)
}

type webhookNotifier struct {
	cfg        config.NotifyConfig
	httpClient *resty.Client
}

func NewNotifier(cfg config.NotifyConfig) Notifier {
	return &webhookNotifier{
		cfg: cfg,
		httpClient: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(1),
	}
}

func (n *webhookNotifier) NotifyNewProducts(ctx context.Context, products []domain.Product) {
	if !n.cfg.Enabled || len(products) == 0 {
		return
	}

	if n.cfg.DiscordWebhookURL != "" {
		if err := n.notifyDiscord(ctx, products); err != nil {
			log.Warnf("⚠️ Discord notification failed: %v", err)
		}
	}
	if n.cfg.LineToken != "" {
		if err := n.notifyLine(ctx, products); err != nil {
			log.Warnf("⚠️ LINE notification failed: %v", err)
		}
	}
}

type discordEmbed struct {
	Title     string         `json:"title"`
	URL       string         `json:"url"`
	Fields    []discordField `json:"fields"`
	Thumbnail discordThumb   `json:"thumbnail"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordThumb struct {
	URL string `json:"url"`
}

func (n *webhookNotifier) notifyDiscord(ctx context.Context, products []domain.Product) error {
	embeds := make([]discordEmbed, 0, 3)
	for _, p := range products {
		if len(embeds) == 3 {
			break
		}
		status := "販売中"
		if p.Sold {
			status = "売り切れ"
		}
		embeds = append(embeds, discordEmbed{
			Title: truncate(p.Title, 100),
			URL:   p.URL,
			Fields: []discordField{
				{Name: "価格", Value: fmt.Sprintf("¥%d", p.Price), Inline: true},
				{Name: "状態", Value: status, Inline: true},
			},
			Thumbnail: discordThumb{URL: p.ImageURL},
		})
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"embeds": embeds}).
		Post(n.cfg.DiscordWebhookURL)
	if err != nil {
		return fmt.Errorf("failed to post discord webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("discord webhook returned %s", resp.Status())
	}
	return nil
}

func (n *webhookNotifier) notifyLine(ctx context.Context, products []domain.Product) error {
	message := fmt.Sprintf("\n🎯 %d件の新商品\n\n", len(products))
	for i, p := range products {
		if i == 3 {
			break
		}
		message += fmt.Sprintf("▫️ %s\n  ¥%d\n  %s\n\n", truncate(p.Title, 30), p.Price, p.URL)
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+n.cfg.LineToken).
		SetFormData(map[string]string{"message": message}).
		Post("https://notify-api.line.me/api/notify")
	if err != nil {
		return fmt.Errorf("failed to post LINE notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("LINE notify returned %s", resp.Status())
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
