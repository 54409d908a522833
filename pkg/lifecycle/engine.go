package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/actor"
	"github.com/raids-lab/staffdesk/pkg/domain"
	"github.com/raids-lab/staffdesk/pkg/fieldvalue"
	"github.com/raids-lab/staffdesk/pkg/monitor"
	"github.com/raids-lab/staffdesk/pkg/timeline"
)

// Notifier creates notifications once a transition has committed.
type Notifier interface {
	NotifyAll(ctx context.Context, recipients []model.User, requestID *uint, title, message string) ([]model.Notification, error)
}

// BlobRemover deletes attachment blobs of hard deleted drafts.
type BlobRemover interface {
	Delete(ctx context.Context, handle string) error
}

// Payload carries the optional inputs of an action.
type Payload struct {
	RejectionReason string
	ReturnReason    string
	ClosureNote     string
	// Title, Notes and FieldValues are only read by resubmit.
	Title       *string
	Notes       *string
	FieldValues map[string]string
}

// DraftInput creates a new draft.
type DraftInput struct {
	RequestTypeID uint
	WorkerID      uint
	Title         string
	Notes         string
	FieldValues   map[string]string
}

// DraftUpdate edits a draft in place; nil members are left unchanged.
type DraftUpdate struct {
	Title       *string
	Notes       *string
	FieldValues map[string]string
}

type Engine struct {
	db        *gorm.DB
	directory actor.Directory
	notifier  Notifier
	blobs     BlobRemover
	now       func() time.Time
}

// NewEngine wires the engine. blobs may be nil when attachments are not stored.
func NewEngine(db *gorm.DB, directory actor.Directory, notifier Notifier, blobs BlobRemover) *Engine {
	return &Engine{
		db:        db,
		directory: directory,
		notifier:  notifier,
		blobs:     blobs,
		now:       time.Now,
	}
}

// CreateDraft creates a request in draft owned by the actor's client company.
func (e *Engine) CreateDraft(ctx context.Context, actor domain.ActorContext, in DraftInput) (*model.Request, error) {
	if err := actor.CheckAttached(); err != nil {
		return nil, err
	}
	if !actor.IsSuperuser && !actor.IsClient() {
		return nil, fmt.Errorf("%w: only clients create requests", domain.ErrInvalidTransition)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, domain.NewValidationError("title", domain.ReasonMissingInput, "title is required")
	}

	req := &model.Request{
		RequestTypeID: in.RequestTypeID,
		WorkerID:      in.WorkerID,
		Status:        model.RequestStatusDraft,
		Title:         title,
		Notes:         in.Notes,
		CreatedByID:   actor.UserID,
		Version:       1,
	}
	if actor.HasCompany() {
		companyID := actor.CompanyID
		req.CurrentCompanyID = &companyID
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rt model.RequestType
		if err := tx.Where("id = ? AND is_active = ?", in.RequestTypeID, true).First(&rt).Error; err != nil {
			return referenceError(err, "request_type", "no active request type with this id")
		}
		var worker model.Worker
		if err := tx.Where("id = ?", in.WorkerID).First(&worker).Error; err != nil {
			return referenceError(err, "worker", "no worker with this id")
		}
		if err := tx.Omit(clause.Associations).Create(req).Error; err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		return fieldvalue.SetValues(ctx, tx, req, in.FieldValues)
	})
	if err != nil {
		return nil, err
	}
	klog.Infof("user %d created draft request %d", actor.UserID, req.ID)
	return req, nil
}

func referenceError(err error, field, detail string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewValidationError(field, domain.ReasonInvalidReference, detail)
	}
	return err
}

// UpdateDraft edits title, notes and field values of a draft. No timeline
// entry is written and no one is notified.
func (e *Engine) UpdateDraft(ctx context.Context, actor domain.ActorContext, req *model.Request, in DraftUpdate) (*model.Request, error) {
	if err := actor.CheckAttached(); err != nil {
		return nil, err
	}
	if req.Status != model.RequestStatusDraft {
		return nil, fmt.Errorf("%w: request %d is %s", domain.ErrInvalidTransition, req.ID, req.Status)
	}
	if err := e.loadParties(ctx, req); err != nil {
		return nil, err
	}
	// editing a draft needs the same rights as submitting it
	if err := authorize(actor, req, Rule{Role: model.CompanyTypeClient}); err != nil {
		return nil, err
	}

	next := *req
	if in.Title != nil {
		next.Title = strings.TrimSpace(*in.Title)
		if next.Title == "" {
			return nil, domain.NewValidationError("title", domain.ReasonMissingInput, "title is required")
		}
	}
	if in.Notes != nil {
		next.Notes = *in.Notes
	}
	next.Version = req.Version + 1
	next.UpdatedAt = e.now()

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fieldvalue.SetValues(ctx, tx, &next, in.FieldValues); err != nil {
			return err
		}
		return e.conditionalUpdate(ctx, tx, req, &next)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// Apply performs action on req. req is the snapshot the caller read; if the
// stored request changed since, Apply fails with ErrConcurrentModification.
// The returned request is nil for delete_draft.
func (e *Engine) Apply(ctx context.Context, actor domain.ActorContext, req *model.Request, action Action, payload Payload) (*model.Request, error) {
	next, err := e.apply(ctx, actor, req, action, payload)
	if err != nil {
		monitor.TransitionFailures.WithLabelValues(string(action), failureReason(err)).Inc()
		return nil, err
	}
	if next != nil {
		monitor.TransitionsTotal.WithLabelValues(string(action), string(next.Status)).Inc()
	} else {
		monitor.TransitionsTotal.WithLabelValues(string(action), "deleted").Inc()
	}
	return next, nil
}

func (e *Engine) apply(ctx context.Context, actor domain.ActorContext, req *model.Request, action Action, payload Payload) (*model.Request, error) {
	if err := actor.CheckAttached(); err != nil {
		return nil, err
	}
	rule, ok := Transition(req.Status, action)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not allowed on a %s request", domain.ErrInvalidTransition, action, req.Status)
	}
	if err := e.loadParties(ctx, req); err != nil {
		return nil, err
	}
	if err := authorize(actor, req, rule); err != nil {
		return nil, fmt.Errorf("%w: user %d cannot %s request %d", err, actor.UserID, action, req.ID)
	}
	if err := validatePayload(action, &payload); err != nil {
		return nil, err
	}

	if action == ActionDeleteDraft {
		return nil, e.deleteDraft(ctx, actor, req)
	}

	next := e.advance(actor, req, rule, &payload)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if action == ActionResubmit {
			if err := fieldvalue.SetValues(ctx, tx, next, payload.FieldValues); err != nil {
				return err
			}
		}
		if rule.RequireComplete {
			missing, err := fieldvalue.ValidateRequired(ctx, tx, next)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return &domain.ValidationError{
					Reason:  domain.ReasonMissingRequired,
					Detail:  "required fields have no value",
					Missing: missing,
				}
			}
		}
		if err := CheckInvariants(next); err != nil {
			return err
		}
		if err := e.conditionalUpdate(ctx, tx, req, next); err != nil {
			return err
		}
		_, err := timeline.Record(ctx, tx, timeline.Entry{
			RequestID:   req.ID,
			UserID:      actor.UserID,
			Action:      rule.TimelineAction,
			Description: describe(action, &payload),
			OldStatus:   req.Status,
			NewStatus:   next.Status,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	klog.Infof("user %d applied %s on request %d: %s -> %s", actor.UserID, action, req.ID, req.Status, next.Status)
	e.notify(ctx, next, rule, &payload)
	return next, nil
}

// loadParties makes sure the creator and the worker are loaded.
func (e *Engine) loadParties(ctx context.Context, req *model.Request) error {
	db := e.db.WithContext(ctx)
	if req.CreatedBy.ID != req.CreatedByID {
		if err := db.Where("id = ?", req.CreatedByID).First(&req.CreatedBy).Error; err != nil {
			return fmt.Errorf("load creator of request %d: %w", req.ID, err)
		}
	}
	if req.Worker.ID != req.WorkerID {
		if err := db.Where("id = ?", req.WorkerID).First(&req.Worker).Error; err != nil {
			return fmt.Errorf("load worker of request %d: %w", req.ID, err)
		}
	}
	return nil
}

func validatePayload(action Action, p *Payload) error {
	p.RejectionReason = strings.TrimSpace(p.RejectionReason)
	p.ReturnReason = strings.TrimSpace(p.ReturnReason)
	p.ClosureNote = strings.TrimSpace(p.ClosureNote)

	switch action {
	case ActionReject:
		if p.RejectionReason == "" {
			return domain.NewValidationError("rejection_reason", domain.ReasonMissingReason, "a rejection reason is required")
		}
	case ActionReturnDefect:
		if p.ReturnReason == "" {
			return domain.NewValidationError("return_reason", domain.ReasonMissingReason, "a return reason is required")
		}
	case ActionResubmit:
		if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
			return domain.NewValidationError("title", domain.ReasonMissingInput, "title cannot be blank")
		}
	}
	return nil
}

// advance computes the request as it will be stored after rule.
func (e *Engine) advance(actor domain.ActorContext, req *model.Request, rule Rule, p *Payload) *model.Request {
	now := e.now()
	next := *req
	next.Status = rule.To
	next.Version = req.Version + 1
	next.UpdatedAt = now

	closeBy := func() {
		userID := actor.UserID
		next.ClosedByID = &userID
		next.ClosedAt = &now
	}

	switch rule.Action {
	case ActionConfirmSubmission:
		if next.CurrentCompanyID == nil && req.CreatedBy.CompanyID != nil {
			companyID := *req.CreatedBy.CompanyID
			next.CurrentCompanyID = &companyID
		}
	case ActionStartProcessing:
		companyID := req.Worker.CompanyID
		next.CurrentCompanyID = &companyID
	case ActionReturnDefect:
		next.ReturnReason = p.ReturnReason
	case ActionComplete:
		next.ClosureNote = p.ClosureNote
		closeBy()
	case ActionReject:
		next.RejectionReason = p.RejectionReason
		closeBy()
	case ActionResubmit:
		next.RejectionReason = ""
		next.ReturnReason = ""
		if p.Title != nil {
			next.Title = strings.TrimSpace(*p.Title)
		}
		if p.Notes != nil {
			next.Notes = *p.Notes
		}
	}
	return &next
}

// conditionalUpdate writes next only if the stored row still has prev's
// status and version.
func (e *Engine) conditionalUpdate(ctx context.Context, tx *gorm.DB, prev, next *model.Request) error {
	res := tx.WithContext(ctx).Model(&model.Request{}).
		Where("id = ? AND status = ? AND version = ?", prev.ID, prev.Status, prev.Version).
		Updates(map[string]any{
			"status":             next.Status,
			"title":              next.Title,
			"notes":              next.Notes,
			"current_company_id": next.CurrentCompanyID,
			"rejection_reason":   next.RejectionReason,
			"closure_note":       next.ClosureNote,
			"return_reason":      next.ReturnReason,
			"closed_by_id":       next.ClosedByID,
			"closed_at":          next.ClosedAt,
			"version":            next.Version,
			"updated_at":         next.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update request %d: %w", prev.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: request %d changed since version %d", domain.ErrConcurrentModification, prev.ID, prev.Version)
	}
	return nil
}

// deleteDraft hard deletes the draft and everything it owns. Blobs are
// removed after the transaction commits.
func (e *Engine) deleteDraft(ctx context.Context, actor domain.ActorContext, req *model.Request) error {
	var handles []string
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Unscoped().
			Where("id = ? AND status = ? AND version = ?", req.ID, req.Status, req.Version).
			Delete(&model.Request{})
		if res.Error != nil {
			return fmt.Errorf("delete request %d: %w", req.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: request %d changed since version %d", domain.ErrConcurrentModification, req.ID, req.Version)
		}

		if err := tx.Model(&model.RequestAttachment{}).Unscoped().
			Where("request_id = ?", req.ID).Pluck("blob_handle", &handles).Error; err != nil {
			return err
		}
		for _, owned := range []any{&model.RequestFieldValue{}, &model.RequestComment{}, &model.RequestAttachment{}} {
			if err := tx.Unscoped().Where("request_id = ?", req.ID).Delete(owned).Error; err != nil {
				return fmt.Errorf("delete children of request %d: %w", req.ID, err)
			}
		}
		return timeline.Purge(ctx, tx, req.ID)
	})
	if err != nil {
		return err
	}

	klog.Infof("user %d deleted draft request %d", actor.UserID, req.ID)
	if e.blobs != nil {
		for _, handle := range handles {
			if err := e.blobs.Delete(ctx, handle); err != nil {
				klog.Warningf("remove blob %s of deleted request %d: %v", handle, req.ID, err)
			}
		}
	}
	return nil
}

func describe(action Action, p *Payload) string {
	switch action {
	case ActionConfirmSubmission:
		return "request submitted to the vendor"
	case ActionStartProcessing:
		return "vendor started processing"
	case ActionReturnDefect:
		return p.ReturnReason
	case ActionComplete:
		return p.ClosureNote
	case ActionReject:
		return p.RejectionReason
	case ActionResubmit:
		return "request corrected and resubmitted"
	case ActionCancel:
		return "request cancelled by the client"
	}
	return ""
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	if ve, ok := domain.AsValidationError(err); ok {
		return string(ve.Reason)
	}
	return "internal"
}
