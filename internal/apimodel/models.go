// Package apimodel holds typed models of the payloads exchanged with the API
// under test. The API publishes no schema, so every field a probe may find
// missing is optional.
package apimodel

import (
	"encoding/json"
	"fmt"
)

// Envelope is the {success, data, error} wrapper most endpoints use.
type Envelope struct {
	Success           *bool           `json:"success,omitempty"`
	Data              json.RawMessage `json:"data,omitempty"`
	Error             string          `json:"error,omitempty"`
	Message           string          `json:"message,omitempty"`
	RemainingAttempts *int            `json:"remainingAttempts,omitempty"`
}

// OK reports whether success is present and true.
func (e *Envelope) OK() bool {
	return e.Success != nil && *e.Success
}

// DecodeData unmarshals the data field into v.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("response has no data field")
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}

// SendOTPRequest is the body of POST /api/auth/send-otp.
type SendOTPRequest struct {
	Email   string `json:"email"`
	IsLogin bool   `json:"isLogin,omitempty"`
}

// SendOTPData is returned by POST /api/auth/send-otp.
type SendOTPData struct {
	UserID         string `json:"userId"`
	IsNewUser      bool   `json:"isNewUser"`
	IsExistingUser bool   `json:"isExistingUser"`
}

// VerifyOTPRequest is the body of POST /api/auth/verify-otp.
type VerifyOTPRequest struct {
	Email   string `json:"email"`
	OTP     string `json:"otp"`
	Role    string `json:"role,omitempty"`
	IsLogin bool   `json:"isLogin"`
}

// VerifyOTPData is returned by a successful POST /api/auth/verify-otp.
type VerifyOTPData struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// User is the identity returned by /api/user/me and embedded elsewhere.
type User struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Sender is the sender sub-object of a chat message.
type Sender struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// CreateConversationRequest is the body of POST /api/chat/conversations.
type CreateConversationRequest struct {
	Subject       string `json:"subject"`
	ParticipantID string `json:"participantId,omitempty"`
}

// Conversation is a chat conversation.
type Conversation struct {
	ID           string   `json:"id"`
	Subject      string   `json:"subject"`
	CreatedBy    string   `json:"createdBy"`
	Participants []string `json:"participants"`
	CreatedAt    string   `json:"createdAt"`
}

// SendMessageRequest is the body of POST /api/chat/conversations/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// Message is a chat message.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Sender         Sender `json:"sender"`
	CreatedAt      string `json:"createdAt"`
}

// Refund request statuses.
const (
	RefundPending  = "pending"
	RefundApproved = "approved"
	RefundRejected = "rejected"
)

// CreateRefundRequest is the body of POST /api/refund-requests.
type CreateRefundRequest struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
	Reason  string  `json:"reason"`
}

// ReviewRefundRequest is the body of PATCH /api/admin/refund-requests/{id}.
type ReviewRefundRequest struct {
	Status    string `json:"status"`
	AdminNote string `json:"adminNote,omitempty"`
}

// RefundRequest is a refund record.
type RefundRequest struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId"`
	OrderID    string  `json:"orderId"`
	Amount     float64 `json:"amount"`
	Reason     string  `json:"reason"`
	Status     string  `json:"status"`
	AdminNote  string  `json:"adminNote,omitempty"`
	CreatedAt  string  `json:"createdAt"`
	ReviewedAt string  `json:"reviewedAt,omitempty"`
}

// KYC statuses.
const (
	KYCNotSubmitted = "not_submitted"
	KYCPending      = "pending"
)

// KYCDocument is one uploaded KYC document.
type KYCDocument struct {
	ID           string `json:"id"`
	DocumentType string `json:"documentType"`
	FileName     string `json:"fileName"`
	MimeType     string `json:"mimeType"`
	Size         int    `json:"size"`
	Status       string `json:"status"`
	UploadedAt   string `json:"uploadedAt"`
}

// KYCStatus is returned by GET /api/kyc/upload.
type KYCStatus struct {
	Status    string        `json:"status"`
	Documents []KYCDocument `json:"documents"`
}
