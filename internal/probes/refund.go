package probes

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wondertwin-ai/apiprobe/internal/apimodel"
	"github.com/wondertwin-ai/apiprobe/internal/auth"
	"github.com/wondertwin-ai/apiprobe/internal/harness"
)

const (
	refundsPath      = "/api/refund-requests"
	adminRefundsPath = "/api/admin/refund-requests"
)

func refundSuite(ctx context.Context, env *Env) {
	h := env.H
	orderID := "order-" + uuid.NewString()
	create := apimodel.CreateRefundRequest{OrderID: orderID, Amount: 49.99, Reason: "Item arrived damaged"}

	h.Run(ctx, "Refund create unauthenticated", harness.Request{
		Method: "POST", Path: refundsPath, Expected: 401, JSON: create,
	})

	if !env.impersonate("Refund customer session", env.identity("refund", auth.RoleUser)) {
		return
	}

	h.Run(ctx, "Refund create invalid amount", harness.Request{
		Method: "POST", Path: refundsPath, Expected: 400,
		JSON: apimodel.CreateRefundRequest{OrderID: orderID, Amount: -10, Reason: create.Reason},
	})

	ok, resp := h.Run(ctx, "Refund create", harness.Request{
		Method: "POST", Path: refundsPath, Expected: 200, JSON: create,
	})
	if !ok {
		return
	}
	id := resp.String("data.id")
	if !h.Expect("Refund id returned", id != "", "data.id = "+id) {
		return
	}
	expectField(h, "Refund created as pending", resp, "data.status", apimodel.RefundPending)

	h.Run(ctx, "Refund duplicate pending for order", harness.Request{
		Method: "POST", Path: refundsPath, Expected: 409, JSON: create,
	})

	ok, resp = h.Run(ctx, "Refund list own", harness.Request{Path: refundsPath, Expected: 200})
	if ok {
		if e, decoded := envelope(h, "Refund listed", resp); decoded {
			var list []apimodel.RefundRequest
			if err := e.DecodeData(&list); err != nil {
				h.Expect("Refund listed", false, err.Error())
			} else {
				h.Expect("Refund listed", containsRefund(list, id), fmt.Sprintf("%d request(s) listed", len(list)))
			}
		}
	}

	review := adminRefundsPath + "/" + id
	approve := apimodel.ReviewRefundRequest{Status: apimodel.RefundApproved, AdminNote: "approved by probe"}
	h.Run(ctx, "Refund review as customer", harness.Request{
		Method: "PATCH", Path: review, Expected: 403, JSON: approve,
	})

	if !env.impersonate("Refund admin session", env.identity("refund-admin", auth.RoleAdmin)) {
		return
	}
	ok, resp = h.Run(ctx, "Refund admin approve", harness.Request{
		Method: "PATCH", Path: review, Expected: 200, JSON: approve,
	})
	if ok {
		expectField(h, "Refund status approved", resp, "data.status", apimodel.RefundApproved)
	}
	h.Run(ctx, "Refund admin review twice", harness.Request{
		Method: "PATCH", Path: review, Expected: 409,
		JSON: apimodel.ReviewRefundRequest{Status: apimodel.RefundRejected},
	})
}

func containsRefund(list []apimodel.RefundRequest, id string) bool {
	for _, rr := range list {
		if rr.ID == id {
			return true
		}
	}
	return false
}
