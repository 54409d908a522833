// Package workflow is the request service used by the transport layer. It
// scopes every lookup to the actor before handing off to the lifecycle engine.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/blobstore"
	"github.com/raids-lab/staffdesk/pkg/domain"
	"github.com/raids-lab/staffdesk/pkg/fieldvalue"
	"github.com/raids-lab/staffdesk/pkg/lifecycle"
	"github.com/raids-lab/staffdesk/pkg/schema"
	"github.com/raids-lab/staffdesk/pkg/scope"
	"github.com/raids-lab/staffdesk/pkg/timeline"
)

type Service struct {
	db       *gorm.DB
	engine   *lifecycle.Engine
	registry *schema.Registry
	blobs    blobstore.Store
}

func NewService(db *gorm.DB, engine *lifecycle.Engine, registry *schema.Registry, blobs blobstore.Store) *Service {
	return &Service{db: db, engine: engine, registry: registry, blobs: blobs}
}

// RequestDetail is everything the detail view shows about a request.
type RequestDetail struct {
	Request     *model.Request
	Values      []fieldvalue.Entry
	Timeline    []model.RequestTimeline
	Comments    []model.RequestComment
	Attachments []model.RequestAttachment
	// Actions the actor may apply right now.
	Actions []lifecycle.Action
}

func (s *Service) CreateDraft(ctx context.Context, actor domain.ActorContext, in lifecycle.DraftInput) (*model.Request, error) {
	return s.engine.CreateDraft(ctx, actor, in)
}

func (s *Service) UpdateDraft(ctx context.Context, actor domain.ActorContext, requestID uint, in lifecycle.DraftUpdate) (*model.Request, error) {
	req, err := scope.Get(ctx, s.db, actor, requestID)
	if err != nil {
		return nil, err
	}
	return s.engine.UpdateDraft(ctx, actor, req, in)
}

// ApplyAction applies action to a request visible to the actor. Requests
// outside the actor's scope are ErrNotFound regardless of the action.
func (s *Service) ApplyAction(
	ctx context.Context,
	actor domain.ActorContext,
	requestID uint,
	action lifecycle.Action,
	payload lifecycle.Payload,
) (*model.Request, error) {
	if err := actor.CheckAttached(); err != nil {
		return nil, err
	}
	req, err := scope.Get(ctx, s.db, actor, requestID)
	if err != nil {
		return nil, err
	}
	return s.engine.Apply(ctx, actor, req, action, payload)
}

// AllowedActions lists what the actor may do with a request right now.
func (s *Service) AllowedActions(ctx context.Context, actor domain.ActorContext, requestID uint) ([]lifecycle.Action, error) {
	req, err := scope.Get(ctx, s.db, actor, requestID)
	if err != nil {
		return nil, err
	}
	return lifecycle.ValidActions(actor, req), nil
}

func (s *Service) GetRequest(ctx context.Context, actor domain.ActorContext, requestID uint) (*RequestDetail, error) {
	req, err := scope.Get(ctx, s.db, actor, requestID,
		"RequestType", "Worker.Company", "CurrentCompany", "ClosedBy")
	if err != nil {
		return nil, err
	}
	detail := &RequestDetail{Request: req, Actions: lifecycle.ValidActions(actor, req)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		detail.Values, err = fieldvalue.Values(gctx, s.db, req)
		return err
	})
	g.Go(func() (err error) {
		detail.Timeline, err = timeline.List(gctx, s.db, req.ID)
		return err
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).Preload("Author").
			Where("request_id = ?", req.ID).Order("created_at").Order("id").
			Find(&detail.Comments).Error
		if err != nil {
			return fmt.Errorf("list comments of request %d: %w", req.ID, err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).Preload("UploadedBy").
			Where("request_id = ?", req.ID).Order("created_at").Order("id").
			Find(&detail.Attachments).Error
		if err != nil {
			return fmt.Errorf("list attachments of request %d: %w", req.ID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}

// GetFieldSchema returns the active fields of an active request type, in the
// order they should be rendered.
func (s *Service) GetFieldSchema(ctx context.Context, requestTypeID uint) ([]model.RequestField, error) {
	rt, err := s.registry.GetType(ctx, requestTypeID)
	if err != nil {
		return nil, err
	}
	if !rt.IsActive {
		return nil, domain.ErrNotFound
	}
	return s.registry.FieldsFor(ctx, requestTypeID, true)
}

// RequestFieldSchema returns the active fields of a visible request's type.
func (s *Service) RequestFieldSchema(ctx context.Context, actor domain.ActorContext, requestID uint) ([]model.RequestField, error) {
	req, err := scope.Get(ctx, s.db, actor, requestID)
	if err != nil {
		return nil, err
	}
	return s.registry.FieldsFor(ctx, req.RequestTypeID, true)
}

func (s *Service) AddComment(ctx context.Context, actor domain.ActorContext, requestID uint, body string) (*model.RequestComment, error) {
	if err := actor.CheckAttached(); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domain.NewValidationError("body", domain.ReasonMissingInput, "comment cannot be empty")
	}
	req, err := scope.Get(ctx, s.db, actor, requestID)
	if err != nil {
		return nil, err
	}
	comment := &model.RequestComment{RequestID: req.ID, AuthorID: actor.UserID, Body: body}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error; err != nil {
		return nil, fmt.Errorf("add comment to request %d: %w", req.ID, err)
	}
	return comment, nil
}

// AttachmentInput is an uploaded file.
type AttachmentInput struct {
	FileName    string
	Description string
	Content     io.Reader
}

func (s *Service) AddAttachment(ctx context.Context, actor domain.ActorContext, requestID uint, in AttachmentInput) (*model.RequestAttachment, error) {
	if err := actor.CheckAttached(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.FileName)
	if name == "" {
		return nil, domain.NewValidationError("file", domain.ReasonMissingInput, "a file is required")
	}
	req, err := scope.Get(ctx, s.db, actor, requestID)
	if err != nil {
		return nil, err
	}

	blob, err := s.blobs.Store(ctx, in.Content)
	if errors.Is(err, blobstore.ErrTooLarge) {
		return nil, domain.NewValidationError("file", domain.ReasonMissingInput, err.Error())
	}
	if err != nil {
		return nil, fmt.Errorf("store attachment of request %d: %w", req.ID, err)
	}

	att := &model.RequestAttachment{
		RequestID:    req.ID,
		UploadedByID: actor.UserID,
		BlobHandle:   blob.Handle,
		FileName:     name,
		ContentType:  blob.ContentType,
		Size:         blob.Size,
		Description:  in.Description,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(att).Error; err != nil {
		if derr := s.blobs.Delete(ctx, blob.Handle); derr != nil {
			klog.Warningf("remove orphan blob %s: %v", blob.Handle, derr)
		}
		return nil, fmt.Errorf("save attachment of request %d: %w", req.ID, err)
	}
	return att, nil
}

// OpenAttachment returns the attachment row and its content. The caller closes the reader.
func (s *Service) OpenAttachment(
	ctx context.Context,
	actor domain.ActorContext,
	requestID, attachmentID uint,
) (*model.RequestAttachment, io.ReadCloser, error) {
	att, _, err := s.findAttachment(ctx, actor, requestID, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, att.BlobHandle)
	if err != nil {
		return nil, nil, err
	}
	return att, rc, nil
}

// DeleteAttachment removes an attachment. Only the request's client owner may do so.
func (s *Service) DeleteAttachment(ctx context.Context, actor domain.ActorContext, requestID, attachmentID uint) error {
	att, req, err := s.findAttachment(ctx, actor, requestID, attachmentID)
	if err != nil {
		return err
	}
	if !actor.IsSuperuser && req.CreatedByID != actor.UserID {
		return fmt.Errorf("%w: only the request owner may delete attachments", domain.ErrUnauthorized)
	}
	if err := s.db.WithContext(ctx).Unscoped().Delete(att).Error; err != nil {
		return fmt.Errorf("delete attachment %d: %w", att.ID, err)
	}
	if err := s.blobs.Delete(ctx, att.BlobHandle); err != nil {
		klog.Warningf("remove blob %s of attachment %d: %v", att.BlobHandle, att.ID, err)
	}
	return nil
}

func (s *Service) findAttachment(
	ctx context.Context,
	actor domain.ActorContext,
	requestID, attachmentID uint,
) (*model.RequestAttachment, *model.Request, error) {
	if err := actor.CheckAttached(); err != nil {
		return nil, nil, err
	}
	req, err := scope.Get(ctx, s.db, actor, requestID)
	if err != nil {
		return nil, nil, err
	}
	var att model.RequestAttachment
	err = s.db.WithContext(ctx).
		Where("id = ? AND request_id = ?", attachmentID, req.ID).
		First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("%w: attachment %d", domain.ErrNotFound, attachmentID)
	}
	if err != nil {
		return nil, nil, err
	}
	return &att, req, nil
}
