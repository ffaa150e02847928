package probes

import (
	"context"

	"github.com/wondertwin-ai/apiprobe/internal/auth"
	"github.com/wondertwin-ai/apiprobe/internal/harness"
)

func adminSuite(ctx context.Context, env *Env) {
	h := env.H

	h.Run(ctx, "Admin list refunds unauthenticated", harness.Request{Path: adminRefundsPath, Expected: 401})

	if env.impersonate("Admin customer session", env.identity("not-admin", auth.RoleUser)) {
		h.Run(ctx, "Admin list refunds as customer", harness.Request{Path: adminRefundsPath, Expected: 403})
	}
	if env.impersonate("Admin session", env.identity("admin", auth.RoleAdmin)) {
		ok, resp := h.Run(ctx, "Admin list refunds as admin", harness.Request{Path: adminRefundsPath, Expected: 200})
		if ok {
			data, _ := resp.Lookup("data")
			_, isList := data.([]any)
			h.Expect("Admin refund list is an array", isList, "data is a JSON array")
		}
	}
}
