// Package twin is an in-memory simulation of the API the probes target:
// OTP sign-up and login, cookie sessions, chat, refund requests, KYC
// uploads and admin review. It backs the end-to-end tests and the
// "probe twin" command, and adds a small /admin control plane (health,
// reset, OTP peek, clock advance) that the real API does not have.
package twin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/wondertwin-ai/apiprobe/internal/apimodel"
	"github.com/wondertwin-ai/apiprobe/internal/auth"
	"github.com/wondertwin-ai/apiprobe/internal/config"
	"github.com/wondertwin-ai/apiprobe/internal/logging"
)

// Options configures a Twin.
type Options struct {
	Secret      string
	CookieName  string
	TokenTTL    time.Duration
	OTPTTL      time.Duration
	MaxAttempts int
	Logger      *logrus.Logger
}

// Twin holds the simulated API state and its router.
type Twin struct {
	opts   Options
	forger *auth.Forger
	log    *logrus.Logger
	clock  *Clock
	router *chi.Mux

	users    *Store[account]
	otps     *Store[otpCode]
	convs    *Store[apimodel.Conversation]
	messages *Store[apimodel.Message]
	refunds  *Store[apimodel.RefundRequest]
	docs     *Store[kycDocument]
}

type account struct {
	ID       string
	Email    string
	Role     string
	Verified bool
}

type otpCode struct {
	Code      string
	ExpiresAt time.Time
	Remaining int
}

type kycDocument struct {
	UserID string
	apimodel.KYCDocument
}

// New builds a Twin. The signing secret is required: the twin validates
// the same HS256 tokens the probes forge.
func New(opts Options) (*Twin, error) {
	if opts.CookieName == "" {
		opts.CookieName = config.DefaultCookieName
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	forger, err := auth.NewForger(opts.Secret, opts.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating twin: %w", err)
	}

	t := &Twin{
		opts:     opts,
		forger:   forger,
		log:      opts.Logger,
		clock:    &Clock{},
		users:    NewStore[account]("usr"),
		otps:     NewStore[otpCode]("otp"),
		convs:    NewStore[apimodel.Conversation]("conv"),
		messages: NewStore[apimodel.Message]("msg"),
		refunds:  NewStore[apimodel.RefundRequest]("rr"),
		docs:     NewStore[kycDocument]("kyc"),
	}
	t.router = t.routes()
	return t, nil
}

func (t *Twin) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(t.requestLog)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/send-otp", t.handleSendOTP)
		r.Post("/auth/verify-otp", t.handleVerifyOTP)

		r.Group(func(r chi.Router) {
			r.Use(t.requireSession)

			r.Get("/user/me", t.handleMe)

			r.Post("/chat/conversations", t.handleCreateConversation)
			r.Get("/chat/conversations", t.handleListConversations)
			r.Get("/chat/conversations/{id}/messages", t.handleListMessages)
			r.Post("/chat/conversations/{id}/messages", t.handleSendMessage)

			r.Post("/refund-requests", t.handleCreateRefund)
			r.Get("/refund-requests", t.handleListRefunds)

			r.Post("/kyc/upload", t.handleKYCUpload)
			r.Get("/kyc/upload", t.handleKYCStatus)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(auth.RoleAdmin))
				r.Get("/refund-requests", t.handleAdminListRefunds)
				r.Patch("/refund-requests/{id}", t.handleReviewRefund)
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/health", t.handleHealth)
		r.Post("/reset", t.handleReset)
		r.Get("/otp", t.handlePeekOTP)
		r.Post("/time/advance", t.handleTimeAdvance)
	})
	return r
}

// ServeHTTP makes the Twin an http.Handler.
func (t *Twin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.router.ServeHTTP(w, r)
}

// Reset drops all state and rewinds the simulated clock.
func (t *Twin) Reset() {
	t.users.Reset()
	t.otps.Reset()
	t.convs.Reset()
	t.messages.Reset()
	t.refunds.Reset()
	t.docs.Reset()
	t.clock.Reset()
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (t *Twin) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return t.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener until ctx is cancelled.
func (t *Twin) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           t,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.log.WithField("addr", ln.Addr().String()).Info("twin listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving twin: %w", err)
	case <-ctx.Done():
		t.log.Info("shutting down twin")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down twin: %w", err)
		}
		return nil
	}
}

func (t *Twin) now() time.Time {
	return t.clock.Now().UTC()
}

func (t *Twin) timestamp() string {
	return t.now().Format(time.RFC3339)
}
