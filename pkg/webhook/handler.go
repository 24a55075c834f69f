// Package webhook terminates GitHub webhook deliveries and feeds the
// relevant ones to the approval engine. Everything else is acknowledged and
// dropped so GitHub never retries deliveries the engine does not want.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"
	"github.com/samber/lo"

	"github.com/codeGROOVE-dev/approvebot/pkg/approve"
)

// maxPayloadSize caps how much of a delivery body is read.
const maxPayloadSize = 10 * 1024 * 1024 // 10MB

// Processor decides and applies approval actions for normalized events.
// *approve.Engine satisfies it.
type Processor interface {
	Process(ctx context.Context, event *approve.Event) (*approve.Result, error)
}

// Handler terminates GitHub webhook deliveries.
type Handler struct {
	engine Processor
	logger *slog.Logger
	secret []byte
}

// NewHandler creates a Handler. An empty secret disables signature checks;
// with a secret set, unsigned and badly signed deliveries are rejected.
func NewHandler(engine Processor, secret string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, secret: []byte(secret), logger: logger}
}

// Router returns the HTTP surface: POST /webhook and GET /healthz.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/webhook", h.handleDelivery)
	return r
}

// handleDelivery verifies, normalizes, and processes one delivery.
func (h *Handler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		http.Error(w, "reading payload", http.StatusBadRequest)
		return
	}

	delivery := r.Header.Get("X-GitHub-Delivery")
	if delivery == "" {
		delivery = xid.New().String()
	}

	if len(h.secret) > 0 && !validSignature(h.secret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.WarnContext(r.Context(), "rejected delivery with bad signature", "delivery", delivery)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	ghEvent := r.Header.Get("X-GitHub-Event")
	event, err := parseEvent(ghEvent, body, delivery)
	if err != nil {
		h.logger.WarnContext(r.Context(), "malformed delivery",
			"event", ghEvent, "delivery", delivery, "error", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if event == nil {
		h.logger.DebugContext(r.Context(), "ignoring delivery", "event", ghEvent, "delivery", delivery)
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	result, err := h.engine.Process(r.Context(), event)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "processing delivery failed",
			"event", ghEvent, "delivery", delivery, "error", err)
		// An approval that landed before a later step failed still counts
		// and must not be redelivered.
		if result != nil && result.Outputs.Approved == "true" {
			h.writeJSON(w, http.StatusOK, result)
			return
		}
		http.Error(w, "processing failed", http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// writeJSON writes v as the JSON response body.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("failed to encode response", "error", err)
	}
}

// validSignature checks an X-Hub-Signature-256 header against the payload.
func validSignature(secret, body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// parseEvent maps a delivery to a normalized engine event. A nil event with
// a nil error means the delivery is deliberately ignored.
func parseEvent(ghEvent string, body []byte, delivery string) (*approve.Event, error) {
	switch ghEvent {
	case "pull_request", "pull_request_review":
	default:
		return nil, nil
	}

	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing %s payload: %w", ghEvent, err)
	}

	var kind string
	switch {
	case ghEvent == "pull_request":
		switch payload.Action {
		case "opened", "reopened", "labeled", "edited":
			kind = payload.Action
		default:
			return nil, nil
		}
	case payload.Action == "submitted":
		kind = approve.EventReviewSubmitted
	case payload.Action == "dismissed":
		kind = approve.EventReviewDismissed
	default:
		return nil, nil
	}

	if payload.PullRequest == nil {
		return nil, errors.New("delivery carries no pull request")
	}

	pr := payload.PullRequest
	return &approve.Event{
		Kind:     kind,
		Delivery: delivery,
		PullRequest: approve.PullRequest{
			Owner:     payload.Repository.Owner.Login,
			Repo:      payload.Repository.Name,
			Number:    pr.Number,
			Title:     pr.Title,
			Body:      pr.Body,
			Author:    pr.User.Login,
			Labels:    lo.Map(pr.Labels, func(l labelPayload, _ int) string { return l.Name }),
			CreatedAt: pr.CreatedAt,
			UpdatedAt: pr.UpdatedAt,
		},
	}, nil
}
