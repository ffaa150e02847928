package probes

import (
	"context"
	"encoding/base64"

	"github.com/wondertwin-ai/apiprobe/internal/apimodel"
	"github.com/wondertwin-ai/apiprobe/internal/auth"
	"github.com/wondertwin-ai/apiprobe/internal/harness"
)

const kycPath = "/api/kyc/upload"

// samplePNG is a valid 1x1 PNG.
var samplePNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

func kycUpload(docType string, files ...harness.File) harness.Request {
	return harness.Request{
		Method: "POST", Path: kycPath,
		Form:  map[string]string{"documentType": docType},
		Files: files,
	}
}

func kycSuite(ctx context.Context, env *Env) {
	h := env.H
	png := harness.File{Field: "document", Name: "passport.png", Content: samplePNG}

	req := kycUpload("passport", png)
	req.Expected = 401
	h.Run(ctx, "KYC upload unauthenticated", req)

	if !env.impersonate("KYC customer session", env.identity("kyc", auth.RoleUser)) {
		return
	}

	ok, resp := h.Run(ctx, "KYC status before upload", harness.Request{Path: kycPath, Expected: 200})
	if ok {
		expectField(h, "KYC status not submitted", resp, "data.status", apimodel.KYCNotSubmitted)
	}

	req = kycUpload("passport")
	req.Expected = 400
	h.Run(ctx, "KYC upload without file", req)

	req = kycUpload("passport", harness.File{Field: "document", Name: "notes.txt", Content: []byte("this is not an identity document\n")})
	req.Expected = 400
	h.Run(ctx, "KYC upload unsupported type", req)

	req = kycUpload("passport", png)
	req.Expected = 200
	ok, resp = h.Run(ctx, "KYC upload PNG", req)
	if ok {
		expectField(h, "KYC document pending", resp, "data.status", apimodel.KYCPending)
	}

	ok, resp = h.Run(ctx, "KYC status after upload", harness.Request{Path: kycPath, Expected: 200})
	if ok {
		expectField(h, "KYC status pending", resp, "data.status", apimodel.KYCPending)
	}

	if env.impersonate("KYC admin session", env.identity("kyc-admin", auth.RoleAdmin)) {
		req = kycUpload("passport", png)
		req.Expected = 403
		h.Run(ctx, "KYC upload as admin", req)
	}
}
