package lifecycle

import (
	"strings"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/domain"
)

// CheckInvariants validates a request that is about to be stored.
func CheckInvariants(req *model.Request) error {
	switch req.Status {
	case model.RequestStatusSubmitted, model.RequestStatusInProgress:
		if req.CurrentCompanyID == nil {
			return breach("current_company", "a submitted or in-progress request needs a responsible company")
		}
	case model.RequestStatusRejected:
		if strings.TrimSpace(req.RejectionReason) == "" {
			return breach("rejection_reason", "a rejected request needs a reason")
		}
	}
	if req.Status == model.RequestStatusCompleted || req.Status == model.RequestStatusRejected {
		if req.ClosedAt == nil || req.ClosedByID == nil {
			return breach("closed_at", "a closed request needs closed_at and closed_by")
		}
	}
	return nil
}

func breach(field, detail string) error {
	return domain.NewValidationError(field, domain.ReasonInvariantBreach, detail)
}
