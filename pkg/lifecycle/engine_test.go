package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/dao/query/querytest"
	"github.com/raids-lab/staffdesk/pkg/actor"
	"github.com/raids-lab/staffdesk/pkg/domain"
	"github.com/raids-lab/staffdesk/pkg/notify"
	"github.com/raids-lab/staffdesk/pkg/timeline"
)

type fakeBlobs struct{ deleted []string }

func (b *fakeBlobs) Delete(_ context.Context, handle string) error {
	b.deleted = append(b.deleted, handle)
	return nil
}

type env struct {
	db     *gorm.DB
	f      *querytest.Fixture
	engine *Engine
	notes  *notify.Dispatcher
	blobs  *fakeBlobs
	ctx    context.Context
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := querytest.NewDB(t)
	f := querytest.Seed(t, db)
	notes := notify.NewDispatcher(db)
	blobs := &fakeBlobs{}
	return &env{
		db:     db,
		f:      f,
		engine: NewEngine(db, actor.NewDBDirectory(db), notes, blobs),
		notes:  notes,
		blobs:  blobs,
		ctx:    context.Background(),
	}
}

func actorOf(u *model.User, c *model.Company) domain.ActorContext {
	a := domain.ActorContext{UserID: u.ID, IsSuperuser: u.IsSuperuser}
	if c != nil {
		a.CompanyID = c.ID
		a.CompanyType = c.Type
	}
	return a
}

func (e *env) client() domain.ActorContext { return actorOf(&e.f.ClientUser, &e.f.Client) }
func (e *env) vendor() domain.ActorContext { return actorOf(&e.f.VendorStaff[0], &e.f.Vendor) }

// load reads a fresh snapshot, as a caller would before applying an action.
func (e *env) load(t *testing.T, id uint) *model.Request {
	t.Helper()
	var req model.Request
	require.NoError(t, e.db.Where("id = ?", id).First(&req).Error)
	return &req
}

func (e *env) draft(t *testing.T, values map[string]string) *model.Request {
	t.Helper()
	req, err := e.engine.CreateDraft(e.ctx, e.client(), DraftInput{
		RequestTypeID: e.f.RequestType.ID,
		WorkerID:      e.f.Worker.ID,
		Title:         "Weekend overtime",
		FieldValues:   values,
	})
	require.NoError(t, err)
	return req
}

func (e *env) apply(t *testing.T, a domain.ActorContext, id uint, action Action, p Payload) *model.Request {
	t.Helper()
	next, err := e.engine.Apply(e.ctx, a, e.load(t, id), action, p)
	require.NoError(t, err)
	return next
}

func (e *env) unread(t *testing.T, userID uint) int64 {
	t.Helper()
	n, err := e.notes.UnreadCount(e.ctx, userID)
	require.NoError(t, err)
	return n
}

func (e *env) timeline(t *testing.T, id uint) []model.RequestTimeline {
	t.Helper()
	rows, err := timeline.List(e.ctx, e.db, id)
	require.NoError(t, err)
	return rows
}

func TestClientVendorScenario(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"hours": "8", "site": "North yard"})
	assert.Equal(t, model.RequestStatusDraft, d.Status)
	require.NotNil(t, d.CurrentCompanyID)
	assert.Equal(t, e.f.Client.ID, *d.CurrentCompanyID)
	assert.Empty(t, e.timeline(t, d.ID))

	submitted := e.apply(t, e.client(), d.ID, ActionConfirmSubmission, Payload{})
	assert.Equal(t, model.RequestStatusSubmitted, submitted.Status)
	assert.Equal(t, e.f.Client.ID, *submitted.CurrentCompanyID)

	entries := e.timeline(t, d.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RequestStatusDraft, entries[0].OldStatus)
	assert.Equal(t, model.RequestStatusSubmitted, entries[0].NewStatus)
	assert.Equal(t, "submitted", entries[0].Action)
	for _, staff := range e.f.VendorStaff {
		assert.EqualValues(t, 1, e.unread(t, staff.ID), staff.Name)
	}
	assert.Zero(t, e.unread(t, e.f.InactiveVendor.ID))
	assert.Zero(t, e.unread(t, e.f.OtherStaff.ID))

	processing := e.apply(t, e.vendor(), d.ID, ActionStartProcessing, Payload{})
	assert.Equal(t, model.RequestStatusInProgress, processing.Status)
	assert.Equal(t, e.f.Vendor.ID, *processing.CurrentCompanyID)
	clientBefore := e.unread(t, e.f.ClientUser.ID)

	rejected := e.apply(t, e.vendor(), d.ID, ActionReject, Payload{RejectionReason: "missing docs"})
	assert.Equal(t, model.RequestStatusRejected, rejected.Status)

	stored := e.load(t, d.ID)
	assert.Equal(t, model.RequestStatusRejected, stored.Status)
	assert.Equal(t, "missing docs", stored.RejectionReason)
	require.NotNil(t, stored.ClosedByID)
	assert.Equal(t, e.f.VendorStaff[0].ID, *stored.ClosedByID)
	assert.NotNil(t, stored.ClosedAt)
	assert.EqualValues(t, 4, stored.Version)
	assert.Equal(t, clientBefore+1, e.unread(t, e.f.ClientUser.ID))
	assert.Len(t, e.timeline(t, d.ID), 3)
}

func TestConfirmSubmissionRequiresRequiredFields(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"site": "North yard"})

	_, err := e.engine.Apply(e.ctx, e.client(), e.load(t, d.ID), ActionConfirmSubmission, Payload{})
	ve, ok := domain.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, domain.ReasonMissingRequired, ve.Reason)
	assert.Equal(t, []string{"Hours"}, ve.Missing)

	stored := e.load(t, d.ID)
	assert.Equal(t, model.RequestStatusDraft, stored.Status)
	assert.EqualValues(t, 1, stored.Version)
	assert.Empty(t, e.timeline(t, d.ID))
	assert.Zero(t, e.unread(t, e.f.VendorStaff[0].ID))
}

func TestReasonsAreRequired(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"hours": "8"})
	e.apply(t, e.client(), d.ID, ActionConfirmSubmission, Payload{})
	e.apply(t, e.vendor(), d.ID, ActionStartProcessing, Payload{})

	cases := []struct {
		action  Action
		payload Payload
		field   string
	}{
		{ActionReject, Payload{}, "rejection_reason"},
		{ActionReject, Payload{RejectionReason: "   "}, "rejection_reason"},
		{ActionReturnDefect, Payload{}, "return_reason"},
		{ActionReturnDefect, Payload{ReturnReason: "\t\n"}, "return_reason"},
	}
	for _, tc := range cases {
		_, err := e.engine.Apply(e.ctx, e.vendor(), e.load(t, d.ID), tc.action, tc.payload)
		ve, ok := domain.AsValidationError(err)
		require.True(t, ok, "%s: got %v", tc.action, err)
		assert.Equal(t, domain.ReasonMissingReason, ve.Reason)
		assert.Equal(t, tc.field, ve.Field)
	}

	stored := e.load(t, d.ID)
	assert.Equal(t, model.RequestStatusInProgress, stored.Status)
	assert.Empty(t, stored.RejectionReason)
	assert.Nil(t, stored.ClosedAt)
	assert.Len(t, e.timeline(t, d.ID), 2)
}

func TestInvalidTransitions(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"hours": "8"})

	// vendor complete on a draft
	_, err := e.engine.Apply(e.ctx, e.vendor(), e.load(t, d.ID), ActionComplete, Payload{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// client tries a vendor action on a submitted request
	e.apply(t, e.client(), d.ID, ActionConfirmSubmission, Payload{})
	_, err = e.engine.Apply(e.ctx, e.client(), e.load(t, d.ID), ActionStartProcessing, Payload{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = e.engine.Apply(e.ctx, e.vendor(), e.load(t, d.ID), Action("approve"), Payload{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	e.apply(t, e.vendor(), d.ID, ActionStartProcessing, Payload{})
	e.apply(t, e.vendor(), d.ID, ActionComplete, Payload{ClosureNote: "done"})
	for _, action := range Actions() {
		_, err = e.engine.Apply(e.ctx, e.vendor(), e.load(t, d.ID), action, Payload{RejectionReason: "late", ReturnReason: "late"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, "%s on completed", action)
	}
	stored := e.load(t, d.ID)
	assert.Equal(t, model.RequestStatusCompleted, stored.Status)
	assert.Equal(t, "done", stored.ClosureNote)
	assert.NotNil(t, stored.ClosedByID)
	assert.NotNil(t, stored.ClosedAt)
}

func TestUnauthorizedActors(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"hours": "8"})

	homeless := actorOf(&e.f.Homeless, nil)
	_, err := e.engine.Apply(e.ctx, homeless, e.load(t, d.ID), ActionConfirmSubmission, Payload{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	otherClient := actorOf(&e.f.OtherUser, &e.f.OtherClient)
	_, err = e.engine.Apply(e.ctx, otherClient, e.load(t, d.ID), ActionConfirmSubmission, Payload{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	e.apply(t, e.client(), d.ID, ActionConfirmSubmission, Payload{})
	otherVendor := actorOf(&e.f.OtherStaff, &e.f.OtherVendor)
	_, err = e.engine.Apply(e.ctx, otherVendor, e.load(t, d.ID), ActionStartProcessing, Payload{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = e.engine.CreateDraft(e.ctx, homeless, DraftInput{RequestTypeID: e.f.RequestType.ID, WorkerID: e.f.Worker.ID, Title: "x"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = e.engine.CreateDraft(e.ctx, e.vendor(), DraftInput{RequestTypeID: e.f.RequestType.ID, WorkerID: e.f.Worker.ID, Title: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestStaleSnapshotIsRejected(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"hours": "8"})
	e.apply(t, e.client(), d.ID, ActionConfirmSubmission, Payload{})
	e.apply(t, e.vendor(), d.ID, ActionStartProcessing, Payload{})

	first := e.load(t, d.ID)
	second := e.load(t, d.ID)
	vera := actorOf(&e.f.VendorStaff[1], &e.f.Vendor)

	_, err := e.engine.Apply(e.ctx, e.vendor(), first, ActionComplete, Payload{})
	require.NoError(t, err)
	_, err = e.engine.Apply(e.ctx, vera, second, ActionReject, Payload{RejectionReason: "duplicate"})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	stored := e.load(t, d.ID)
	assert.Equal(t, model.RequestStatusCompleted, stored.Status)
	assert.Empty(t, stored.RejectionReason)
	assert.Len(t, e.timeline(t, d.ID), 3)
}

func TestReturnAndResubmit(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"hours": "8"})
	e.apply(t, e.client(), d.ID, ActionConfirmSubmission, Payload{})
	e.apply(t, e.vendor(), d.ID, ActionStartProcessing, Payload{})
	returned := e.apply(t, e.vendor(), d.ID, ActionReturnDefect, Payload{ReturnReason: "hours look wrong"})
	assert.Equal(t, model.RequestStatusReturned, returned.Status)
	assert.Equal(t, "hours look wrong", returned.ReturnReason)

	// a bad value rolls the whole resubmission back
	_, err := e.engine.Apply(e.ctx, e.client(), e.load(t, d.ID), ActionResubmit, Payload{
		FieldValues: map[string]string{"hours": "many"},
	})
	ve, ok := domain.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, domain.ReasonInvalidNumber, ve.Reason)
	assert.Equal(t, model.RequestStatusReturned, e.load(t, d.ID).Status)

	// clearing a required value fails the required gate
	_, err = e.engine.Apply(e.ctx, e.client(), e.load(t, d.ID), ActionResubmit, Payload{
		FieldValues: map[string]string{"hours": ""},
	})
	ve, ok = domain.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, domain.ReasonMissingRequired, ve.Reason)

	vendorUnread := e.unread(t, e.f.VendorStaff[1].ID)
	title := "Weekend overtime (corrected)"
	resubmitted := e.apply(t, e.client(), d.ID, ActionResubmit, Payload{
		Title:       &title,
		FieldValues: map[string]string{"hours": "6"},
	})
	assert.Equal(t, model.RequestStatusSubmitted, resubmitted.Status)

	stored := e.load(t, d.ID)
	assert.Equal(t, title, stored.Title)
	assert.Empty(t, stored.ReturnReason)
	assert.Empty(t, stored.RejectionReason)
	assert.Equal(t, e.f.Vendor.ID, *stored.CurrentCompanyID)
	assert.Equal(t, vendorUnread+1, e.unread(t, e.f.VendorStaff[1].ID))

	var hours model.RequestFieldValue
	require.NoError(t, e.db.Where("request_id = ? AND field_id = ?", d.ID, e.f.Fields["hours"].ID).First(&hours).Error)
	assert.Equal(t, "6", hours.ValueNumber.Decimal.String())

	entries := e.timeline(t, d.ID)
	require.Len(t, entries, 4)
	assert.Equal(t, "resubmitted", entries[3].Action)
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"hours": "8"})

	_, err := e.engine.Apply(e.ctx, e.client(), e.load(t, d.ID), ActionCancel, Payload{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	e.apply(t, e.client(), d.ID, ActionConfirmSubmission, Payload{})
	cancelled := e.apply(t, e.client(), d.ID, ActionCancel, Payload{})
	assert.Equal(t, model.RequestStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.ClosedAt)
	assert.EqualValues(t, 2, e.unread(t, e.f.VendorStaff[0].ID))
}

func TestDeleteDraft(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"hours": "8", "site": "North yard"})
	require.NoError(t, e.db.Create(&model.RequestComment{RequestID: d.ID, AuthorID: e.f.ClientUser.ID, Body: "draft note"}).Error)
	require.NoError(t, e.db.Create(&model.RequestAttachment{
		RequestID: d.ID, UploadedByID: e.f.ClientUser.ID, BlobHandle: "ab/cdef", FileName: "roster.pdf",
	}).Error)

	next, err := e.engine.Apply(e.ctx, e.client(), e.load(t, d.ID), ActionDeleteDraft, Payload{})
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, []string{"ab/cdef"}, e.blobs.deleted)

	for _, owned := range []any{&model.Request{}, &model.RequestFieldValue{}, &model.RequestComment{}, &model.RequestAttachment{}} {
		var count int64
		require.NoError(t, e.db.Unscoped().Model(owned).Count(&count).Error)
		assert.Zero(t, count, "%T", owned)
	}
}

func TestDeleteDraftOnlyWhileDraft(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"hours": "8"})
	e.apply(t, e.client(), d.ID, ActionConfirmSubmission, Payload{})

	_, err := e.engine.Apply(e.ctx, e.client(), e.load(t, d.ID), ActionDeleteDraft, Payload{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, model.RequestStatusSubmitted, e.load(t, d.ID).Status)
}

func TestSuperuserBypassesCompanyChecks(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, map[string]string{"hours": "8"})
	root := actorOf(&e.f.Superuser, nil)

	e.apply(t, root, d.ID, ActionConfirmSubmission, Payload{})
	processing := e.apply(t, root, d.ID, ActionStartProcessing, Payload{})
	require.NotNil(t, processing.CurrentCompanyID)
	assert.Equal(t, e.f.Vendor.ID, *processing.CurrentCompanyID)
}

func TestCreateDraftValidatesReferences(t *testing.T) {
	e := newEnv(t)

	_, err := e.engine.CreateDraft(e.ctx, e.client(), DraftInput{RequestTypeID: 999, WorkerID: e.f.Worker.ID, Title: "x"})
	ve, ok := domain.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "request_type", ve.Field)

	_, err = e.engine.CreateDraft(e.ctx, e.client(), DraftInput{RequestTypeID: e.f.RequestType.ID, WorkerID: 999, Title: "x"})
	ve, ok = domain.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "worker", ve.Field)

	_, err = e.engine.CreateDraft(e.ctx, e.client(), DraftInput{RequestTypeID: e.f.RequestType.ID, WorkerID: e.f.Worker.ID, Title: " "})
	ve, ok = domain.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, domain.ReasonMissingInput, ve.Reason)

	_, err = e.engine.CreateDraft(e.ctx, e.client(), DraftInput{
		RequestTypeID: e.f.RequestType.ID, WorkerID: e.f.Worker.ID, Title: "x",
		FieldValues: map[string]string{"night": "perhaps"},
	})
	ve, ok = domain.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, domain.ReasonInvalidBool, ve.Reason)

	var count int64
	require.NoError(t, e.db.Model(&model.Request{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateDraft(t *testing.T) {
	e := newEnv(t)
	d := e.draft(t, nil)

	title := "Night overtime"
	updated, err := e.engine.UpdateDraft(e.ctx, e.client(), e.load(t, d.ID), DraftUpdate{
		Title:       &title,
		FieldValues: map[string]string{"hours": "4", "night": "yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.EqualValues(t, 2, updated.Version)
	assert.Empty(t, e.timeline(t, d.ID))

	stale := d
	_, err = e.engine.UpdateDraft(e.ctx, e.client(), stale, DraftUpdate{Title: &title})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	e.apply(t, e.client(), d.ID, ActionConfirmSubmission, Payload{})
	_, err = e.engine.UpdateDraft(e.ctx, e.client(), e.load(t, d.ID), DraftUpdate{Title: &title})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestClosedAtUsesEngineClock(t *testing.T) {
	e := newEnv(t)
	fixed := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	e.engine.now = func() time.Time { return fixed }

	d := e.draft(t, map[string]string{"hours": "8"})
	e.apply(t, e.client(), d.ID, ActionConfirmSubmission, Payload{})
	rejected := e.apply(t, e.vendor(), d.ID, ActionReject, Payload{RejectionReason: "no capacity"})
	require.NotNil(t, rejected.ClosedAt)
	assert.True(t, fixed.Equal(*rejected.ClosedAt))
}
