package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/imroc/req/v3"

	"github.com/raids-lab/staffdesk/dao/model"
)

// WebhookMessage is the JSON body posted for every notification.
type WebhookMessage struct {
	NotificationID uint   `json:"notificationID"`
	RecipientID    uint   `json:"recipientID"`
	Recipient      string `json:"recipient"`
	RequestID      *uint  `json:"requestID,omitempty"`
	Title          string `json:"title"`
	Message        string `json:"message"`
}

// WebhookChannel posts notifications to an HTTP endpoint, e.g. a chat robot.
type WebhookChannel struct {
	url    string
	client *req.Client
}

func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: req.C().SetTimeout(timeout).SetUserAgent("staffdesk-notify"),
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Deliver(ctx context.Context, recipient *model.User, n *model.Notification) error {
	body := WebhookMessage{
		NotificationID: n.ID,
		RecipientID:    recipient.ID,
		Recipient:      recipient.Name,
		RequestID:      n.RequestID,
		Title:          n.Title,
		Message:        n.Message,
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(body).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsErrorState() {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
