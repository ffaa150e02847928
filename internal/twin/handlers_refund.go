package twin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/apiprobe/internal/apimodel"
	"github.com/wondertwin-ai/apiprobe/internal/auth"
)

func (t *Twin) handleCreateRefund(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r)
	if c.Role == auth.RoleAdmin {
		fail(w, http.StatusForbidden, "Admins cannot create refund requests")
		return
	}

	var req apimodel.CreateRefundRequest
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	reason := strings.TrimSpace(req.Reason)
	switch {
	case orderID == "":
		fail(w, http.StatusBadRequest, "Order ID is required")
		return
	case req.Amount <= 0:
		fail(w, http.StatusBadRequest, "Amount must be greater than zero")
		return
	case reason == "":
		fail(w, http.StatusBadRequest, "Reason is required")
		return
	}

	_, duplicate := t.refunds.Find(func(rr apimodel.RefundRequest) bool {
		return rr.UserID == c.UserID && rr.OrderID == orderID && rr.Status == apimodel.RefundPending
	})
	if duplicate {
		fail(w, http.StatusConflict, "A pending refund request already exists for this order")
		return
	}

	rr := apimodel.RefundRequest{
		ID:        t.refunds.NextID(),
		UserID:    c.UserID,
		OrderID:   orderID,
		Amount:    req.Amount,
		Reason:    reason,
		Status:    apimodel.RefundPending,
		CreatedAt: t.timestamp(),
	}
	t.refunds.Set(rr.ID, rr)
	ok(w, rr)
}

func (t *Twin) handleListRefunds(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r)
	ok(w, t.refunds.Filter(func(rr apimodel.RefundRequest) bool {
		return c.Role == auth.RoleAdmin || rr.UserID == c.UserID
	}))
}

func (t *Twin) handleAdminListRefunds(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	ok(w, t.refunds.Filter(func(rr apimodel.RefundRequest) bool {
		return status == "" || rr.Status == status
	}))
}

func (t *Twin) handleReviewRefund(w http.ResponseWriter, r *http.Request) {
	var req apimodel.ReviewRefundRequest
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status != apimodel.RefundApproved && req.Status != apimodel.RefundRejected {
		fail(w, http.StatusBadRequest, "Status must be approved or rejected")
		return
	}

	reviewedAt := t.timestamp()
	var reviewed bool
	rr, found := t.refunds.Update(chi.URLParam(r, "id"), func(rr *apimodel.RefundRequest) bool {
		if rr.Status != apimodel.RefundPending {
			reviewed = true
			return true
		}
		rr.Status = req.Status
		rr.AdminNote = req.AdminNote
		rr.ReviewedAt = reviewedAt
		return true
	})
	switch {
	case !found:
		fail(w, http.StatusNotFound, "Refund request not found")
	case reviewed:
		fail(w, http.StatusConflict, "Refund request has already been reviewed")
	default:
		ok(w, rr)
	}
}
