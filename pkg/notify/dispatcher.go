// Package notify creates in-app notifications and pushes them to delivery
// channels. Delivery is best-effort: nothing here rolls back a transition.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/domain"
)

// Channel delivers an already stored notification out of band.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, recipient *model.User, n *model.Notification) error
}

type Dispatcher struct {
	db       *gorm.DB
	channels []Channel
	// async runs channel delivery; replaced in tests to run inline.
	async func(func())
}

func NewDispatcher(db *gorm.DB, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		db:       db,
		channels: channels,
		async:    func(f func()) { go f() },
	}
}

// Notify creates one unread notification for recipient.
func (d *Dispatcher) Notify(ctx context.Context, recipient *model.User, requestID *uint, title, message string) (*model.Notification, error) {
	created, err := d.NotifyAll(ctx, []model.User{*recipient}, requestID, title, message)
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// NotifyAll creates one notification per distinct recipient.
func (d *Dispatcher) NotifyAll(ctx context.Context, recipients []model.User, requestID *uint, title, message string) ([]model.Notification, error) {
	recipients = lo.UniqBy(recipients, func(u model.User) uint { return u.ID })
	if len(recipients) == 0 {
		return nil, nil
	}

	rows := lo.Map(recipients, func(u model.User, _ int) model.Notification {
		return model.Notification{
			RecipientID: u.ID,
			RequestID:   requestID,
			Title:       title,
			Message:     message,
		}
	})
	if err := d.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("create %d notifications: %w", len(rows), err)
	}

	if len(d.channels) > 0 {
		for i := range rows {
			recipient, n := recipients[i], rows[i]
			d.async(func() { d.deliver(context.WithoutCancel(ctx), &recipient, &n) })
		}
	}
	return rows, nil
}

func (d *Dispatcher) deliver(ctx context.Context, recipient *model.User, n *model.Notification) {
	for _, ch := range d.channels {
		if err := ch.Deliver(ctx, recipient, n); err != nil {
			klog.Warningf("deliver notification %d to user %d via %s failed: %v", n.ID, recipient.ID, ch.Name(), err)
		}
	}
}

// Page is one page of a user's notifications.
type Page struct {
	Rows  []model.Notification
	Count int64
}

// List returns the user's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, userID uint, unreadOnly bool, pageIndex, pageSize int) (*Page, error) {
	q := d.db.WithContext(ctx).Model(&model.Notification{}).Where("recipient_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	page := &Page{}
	if err := q.Count(&page.Count).Error; err != nil {
		return nil, err
	}
	offset, limit := domain.Window(pageIndex, pageSize)
	err := q.Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&page.Rows).Error
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (d *Dispatcher) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks one notification read. Only its recipient may do so; for
// anyone else it does not exist.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, notificationID uint) error {
	var n model.Notification
	err := d.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", notificationID, userID).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	return d.db.WithContext(ctx).Model(&n).Update("is_read", true).Error
}

// MarkAllRead marks every unread notification of the user and returns how many changed.
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := d.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
