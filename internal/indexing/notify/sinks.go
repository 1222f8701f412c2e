package notify

import (
	"context"
	"net/http"
	"strings"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

// TelegramSink posts to the Telegram reporting bot.
type TelegramSink struct {
	baseURL string
	chatID  string
	slotID  uint64
	http    *http.Client
}

func NewTelegramSink(baseURL, chatID string, slotID uint64, client *http.Client) *TelegramSink {
	return &TelegramSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		chatID:  chatID,
		slotID:  slotID,
		http:    client,
	}
}

func (s *TelegramSink) Name() string { return "telegram" }

type telegramSnapshotReport struct {
	ChatID string                   `json:"chatId"`
	SlotID uint64                   `json:"slotId"`
	Issue  domain.SnapshotterIssue  `json:"issue"`
	Status domain.SnapshotterStatus `json:"status"`
}

type telegramEpochReport struct {
	ChatID string                  `json:"chatId"`
	SlotID uint64                  `json:"slotId"`
	Issue  domain.SnapshotterIssue `json:"issue"`
}

func (s *TelegramSink) SnapshotIssue(
	ctx context.Context,
	issue domain.SnapshotterIssue,
	status domain.SnapshotterStatus,
) error {
	return postJSON(ctx, s.http, s.baseURL+"/reportSnapshotIssue", telegramSnapshotReport{
		ChatID: s.chatID,
		SlotID: s.slotID,
		Issue:  issue,
		Status: status,
	})
}

func (s *TelegramSink) EpochProcessingIssue(ctx context.Context, issue domain.SnapshotterIssue) error {
	return postJSON(ctx, s.http, s.baseURL+"/reportEpochProcessingIssue", telegramEpochReport{
		ChatID: s.chatID,
		SlotID: s.slotID,
		Issue:  issue,
	})
}

// WebhookSink posts a flat report to a generic webhook.
type WebhookSink struct {
	url     string
	service string
	chatID  string
	slotID  uint64
	http    *http.Client
}

func NewWebhookSink(url, service, chatID string, slotID uint64, client *http.Client) *WebhookSink {
	return &WebhookSink{url: url, service: service, chatID: chatID, slotID: slotID, http: client}
}

func (s *WebhookSink) Name() string { return "webhook" }

type webhookReport struct {
	InstanceID      string                    `json:"instanceID"`
	IssueType       domain.IssueType          `json:"issueType"`
	ProjectID       string                    `json:"projectID"`
	EpochID         string                    `json:"epochId"`
	TimeOfReporting string                    `json:"timeOfReporting"`
	SlotID          uint64                    `json:"slotId"`
	Status          *domain.SnapshotterStatus `json:"status"`
	Issue           string                    `json:"issue"`
	ChatID          string                    `json:"chatId,omitempty"`
	Service         string                    `json:"service"`
}

func (s *WebhookSink) report(issue domain.SnapshotterIssue, status *domain.SnapshotterStatus) webhookReport {
	return webhookReport{
		InstanceID:      issue.InstanceID,
		IssueType:       issue.IssueType,
		ProjectID:       issue.ProjectID,
		EpochID:         issue.EpochID,
		TimeOfReporting: issue.TimeOfReporting,
		SlotID:          s.slotID,
		Status:          status,
		Issue:           issue.Extra,
		ChatID:          s.chatID,
		Service:         s.service,
	}
}

func (s *WebhookSink) SnapshotIssue(
	ctx context.Context,
	issue domain.SnapshotterIssue,
	status domain.SnapshotterStatus,
) error {
	return postJSON(ctx, s.http, s.url, s.report(issue, &status))
}

func (s *WebhookSink) EpochProcessingIssue(ctx context.Context, issue domain.SnapshotterIssue) error {
	return postJSON(ctx, s.http, s.url, s.report(issue, nil))
}
