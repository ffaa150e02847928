package twin

import (
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/wondertwin-ai/apiprobe/internal/apimodel"
	"github.com/wondertwin-ai/apiprobe/internal/auth"
)

// maxKYCSize is the largest accepted KYC document.
const maxKYCSize = 5 << 20

var (
	kycDocumentTypes = []string{"passport", "id_card", "drivers_license"}
	kycMimeTypes     = []string{"image/jpeg", "image/png", "application/pdf"}
)

func (t *Twin) handleKYCUpload(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r)
	if c.Role == auth.RoleAdmin {
		fail(w, http.StatusForbidden, "Admins cannot submit KYC documents")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxKYCSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(w, http.StatusBadRequest, "File too large")
			return
		}
		fail(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	docType := r.FormValue("documentType")
	if !slices.Contains(kycDocumentTypes, docType) {
		fail(w, http.StatusBadRequest, "Invalid document type")
		return
	}

	file, hdr, err := r.FormFile("document")
	if err != nil {
		fail(w, http.StatusBadRequest, "Document file is required")
		return
	}
	defer file.Close()
	if hdr.Size > maxKYCSize {
		fail(w, http.StatusBadRequest, "File too large")
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		fail(w, http.StatusBadRequest, "Could not read document")
		return
	}

	mtype := mimetype.Detect(content)
	if !mimetype.EqualsAny(mtype.String(), kycMimeTypes...) {
		fail(w, http.StatusBadRequest, "Unsupported file type")
		return
	}

	doc := kycDocument{
		UserID: c.UserID,
		KYCDocument: apimodel.KYCDocument{
			ID:           t.docs.NextID(),
			DocumentType: docType,
			FileName:     hdr.Filename,
			MimeType:     mtype.String(),
			Size:         len(content),
			Status:       apimodel.KYCPending,
			UploadedAt:   t.timestamp(),
		},
	}
	t.docs.Set(doc.ID, doc)
	t.log.WithFields(logrus.Fields{"user": c.UserID, "type": docType, "mime": doc.MimeType}).Info("kyc document stored")
	ok(w, doc.KYCDocument)
}

func (t *Twin) handleKYCStatus(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r)
	docs := t.docs.Filter(func(d kycDocument) bool { return d.UserID == c.UserID })

	status := apimodel.KYCStatus{Status: apimodel.KYCNotSubmitted, Documents: make([]apimodel.KYCDocument, 0, len(docs))}
	for _, d := range docs {
		status.Documents = append(status.Documents, d.KYCDocument)
	}
	if len(docs) > 0 {
		status.Status = apimodel.KYCPending
	}
	ok(w, status)
}

