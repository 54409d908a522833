package lifecycle

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/monitor"
)

// notify fans out the rule's notification. It runs after commit and never
// fails the transition.
func (e *Engine) notify(ctx context.Context, req *model.Request, rule Rule, p *Payload) {
	if e.notifier == nil || rule.Audience == AudienceNone {
		return
	}

	var recipients []model.User
	switch rule.Audience {
	case AudienceVendor:
		staff, err := e.directory.ActiveStaff(ctx, req.Worker.CompanyID)
		if err != nil {
			klog.Warningf("resolve vendor staff for request %d: %v", req.ID, err)
			return
		}
		recipients = staff
	case AudienceClient:
		creator, err := e.directory.GetUser(ctx, req.CreatedByID)
		if err != nil {
			klog.Warningf("resolve creator of request %d: %v", req.ID, err)
			return
		}
		recipients = []model.User{*creator}
	}

	requestID := req.ID
	created, err := e.notifier.NotifyAll(ctx, recipients, &requestID, rule.Title, message(req, rule.Action, p))
	if err != nil {
		klog.Warningf("notify %d users about %s on request %d: %v", len(recipients), rule.Action, req.ID, err)
		return
	}
	monitor.NotificationsCreated.Add(float64(len(created)))
}

func message(req *model.Request, action Action, p *Payload) string {
	switch action {
	case ActionConfirmSubmission:
		return fmt.Sprintf("New request #%d %q for worker %s.", req.ID, req.Title, req.Worker.Name)
	case ActionResubmit:
		return fmt.Sprintf("Request #%d %q was corrected and resubmitted.", req.ID, req.Title)
	case ActionCancel:
		return fmt.Sprintf("Request #%d %q was cancelled by the client.", req.ID, req.Title)
	case ActionStartProcessing:
		return fmt.Sprintf("The vendor started working on request #%d %q.", req.ID, req.Title)
	case ActionReturnDefect:
		return fmt.Sprintf("Request #%d needs corrections: %s", req.ID, p.ReturnReason)
	case ActionComplete:
		if p.ClosureNote != "" {
			return fmt.Sprintf("Request #%d was completed: %s", req.ID, p.ClosureNote)
		}
		return fmt.Sprintf("Request #%d was completed.", req.ID)
	case ActionReject:
		return fmt.Sprintf("Request #%d was rejected: %s", req.ID, p.RejectionReason)
	}
	return ""
}
