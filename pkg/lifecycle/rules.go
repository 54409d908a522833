// Package lifecycle is the request state machine: which actions are legal
// from which status, who may perform them, and what each one changes.
package lifecycle

import (
	"github.com/samber/lo"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/domain"
)

// Action is a command applied to an existing request.
type Action string

const (
	ActionConfirmSubmission Action = "confirm_submission"
	ActionDeleteDraft       Action = "delete_draft"
	ActionStartProcessing   Action = "start_processing"
	ActionReturnDefect      Action = "return_defect"
	ActionComplete          Action = "complete"
	ActionReject            Action = "reject"
	ActionResubmit          Action = "resubmit"
	ActionCancel            Action = "cancel"
)

// Audience selects who is notified after a transition commits.
type Audience int

const (
	AudienceNone   Audience = iota
	AudienceVendor          // all active staff of the worker's vendor company
	AudienceClient          // the request's creator
)

// Rule is one row of the transition table.
type Rule struct {
	From   model.RequestStatus
	Action Action
	Role   model.CompanyType
	// To is empty for delete_draft, which removes the request.
	To model.RequestStatus

	// TimelineAction is the action name written to the timeline.
	TimelineAction string
	// RequireComplete gates the transition on all required fields having values.
	RequireComplete bool
	Audience        Audience
	Title           string
}

var rules = []Rule{
	{
		From: model.RequestStatusDraft, Action: ActionConfirmSubmission, Role: model.CompanyTypeClient,
		To: model.RequestStatusSubmitted, TimelineAction: "submitted", RequireComplete: true,
		Audience: AudienceVendor, Title: "New request",
	},
	{
		From: model.RequestStatusDraft, Action: ActionDeleteDraft, Role: model.CompanyTypeClient,
	},
	{
		From: model.RequestStatusSubmitted, Action: ActionStartProcessing, Role: model.CompanyTypeVendor,
		To: model.RequestStatusInProgress, TimelineAction: "processing_started",
		Audience: AudienceClient, Title: "Request in progress",
	},
	{
		From: model.RequestStatusInProgress, Action: ActionReturnDefect, Role: model.CompanyTypeVendor,
		To: model.RequestStatusReturned, TimelineAction: "returned",
		Audience: AudienceClient, Title: "Request returned for correction",
	},
	{
		From: model.RequestStatusInProgress, Action: ActionComplete, Role: model.CompanyTypeVendor,
		To: model.RequestStatusCompleted, TimelineAction: "completed",
		Audience: AudienceClient, Title: "Request completed",
	},
	{
		From: model.RequestStatusSubmitted, Action: ActionReject, Role: model.CompanyTypeVendor,
		To: model.RequestStatusRejected, TimelineAction: "rejected",
		Audience: AudienceClient, Title: "Request rejected",
	},
	{
		From: model.RequestStatusInProgress, Action: ActionReject, Role: model.CompanyTypeVendor,
		To: model.RequestStatusRejected, TimelineAction: "rejected",
		Audience: AudienceClient, Title: "Request rejected",
	},
	{
		From: model.RequestStatusReturned, Action: ActionResubmit, Role: model.CompanyTypeClient,
		To: model.RequestStatusSubmitted, TimelineAction: "resubmitted", RequireComplete: true,
		Audience: AudienceVendor, Title: "Request resubmitted",
	},
	{
		From: model.RequestStatusSubmitted, Action: ActionCancel, Role: model.CompanyTypeClient,
		To: model.RequestStatusCancelled, TimelineAction: "cancelled",
		Audience: AudienceVendor, Title: "Request cancelled",
	},
	{
		From: model.RequestStatusReturned, Action: ActionCancel, Role: model.CompanyTypeClient,
		To: model.RequestStatusCancelled, TimelineAction: "cancelled",
		Audience: AudienceVendor, Title: "Request cancelled",
	},
}

// Actions lists every known action.
func Actions() []Action {
	return lo.Uniq(lo.Map(rules, func(r Rule, _ int) Action { return r.Action }))
}

func (a Action) IsValid() bool {
	return lo.Contains(Actions(), a)
}

// Transition looks up the rule for action from status.
func Transition(from model.RequestStatus, action Action) (Rule, bool) {
	return lo.Find(rules, func(r Rule) bool {
		return r.From == from && r.Action == action
	})
}

// authorize checks the actor against the rule's role and the request's
// counterpart company. req must carry CreatedBy and Worker.
func authorize(actor domain.ActorContext, req *model.Request, rule Rule) error {
	if err := actor.CheckAttached(); err != nil {
		return err
	}
	if actor.IsSuperuser {
		return nil
	}
	if actor.CompanyType != rule.Role {
		return domain.ErrInvalidTransition
	}
	switch rule.Role {
	case model.CompanyTypeClient:
		if req.CreatedBy.ID != req.CreatedByID || req.CreatedBy.CompanyID == nil ||
			*req.CreatedBy.CompanyID != actor.CompanyID {
			return domain.ErrUnauthorized
		}
	case model.CompanyTypeVendor:
		if req.Worker.ID != req.WorkerID || req.Worker.CompanyID != actor.CompanyID {
			return domain.ErrUnauthorized
		}
	}
	return nil
}

// check runs the state and authorization steps shared by Apply and CanAct.
func check(actor domain.ActorContext, req *model.Request, action Action) (Rule, error) {
	if err := actor.CheckAttached(); err != nil {
		return Rule{}, err
	}
	rule, ok := Transition(req.Status, action)
	if !ok {
		return Rule{}, domain.ErrInvalidTransition
	}
	if err := authorize(actor, req, rule); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// CanAct reports whether actor may apply action to req in its current
// status. req must be loaded with CreatedBy and Worker.
func CanAct(actor domain.ActorContext, req *model.Request, action Action) bool {
	_, err := check(actor, req, action)
	return err == nil
}

// ValidActions lists the actions actor may apply to req right now.
func ValidActions(actor domain.ActorContext, req *model.Request) []Action {
	return lo.Uniq(lo.FilterMap(rules, func(r Rule, _ int) (Action, bool) {
		return r.Action, r.From == req.Status && CanAct(actor, req, r.Action)
	}))
}
