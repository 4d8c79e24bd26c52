package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/m3rciful/propbot/core/buildinfo"
	"github.com/m3rciful/propbot/core/channel"
	"github.com/m3rciful/propbot/core/config"
	"github.com/m3rciful/propbot/core/logger"
)

const (
	signatureHeader      = "X-Hub-Signature-256"
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// verifyWebhook answers the Meta subscription handshake.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(logger.WithHandler(r.Context(), "webhook.verify"))
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && secretEqual(token, s.opts.Channel.VerifyToken) {
		logger.Info(r.Context(), component, "webhook.verified", slog.String("status", "ok"))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, challenge)
		return
	}

	logger.Warn(r.Context(), component, "webhook.verify_failed",
		slog.String("status", "fail"),
		slog.String("mode", logger.SanitizeLimit(mode, 32)),
	)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = io.WriteString(w, "Forbidden")
}

// receiveWebhook normalizes a delivery and hands each message to the conversation.
func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithHandler(r.Context(), "webhook.receive")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn(ctx, component, "webhook.too_large", slog.String("status", "fail"))
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"status": "error", "error": "payload too large"})
			return
		}
		logger.Warn(ctx, component, "webhook.read_failed", slog.String("status", "fail"), slog.String("err", err.Error()))
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "unreadable body"})
		return
	}

	if !s.authentic(r, body) {
		logger.Warn(ctx, component, "webhook.unauthorized", slog.String("status", "fail"))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "error": "invalid signature"})
		return
	}

	msgs, err := s.opts.Normalizer.Normalize(body)
	switch {
	case errors.Is(err, channel.ErrNotUserMessage):
		logger.Debug(ctx, component, "webhook.ignored", slog.String("status", "ignored"))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case err != nil:
		logger.Warn(ctx, component, "webhook.decode_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.String("payload", logger.SanitizeLimit(string(body), 256)),
		)
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid payload"})
		return
	}

	logger.Debug(ctx, component, "webhook.received", slog.Int("count", len(msgs)))
	for _, m := range msgs {
		if _, err := s.opts.Conversation.Handle(ctx, m); err != nil {
			logger.Warn(ctx, component, "webhook.handle_failed",
				slog.String("status", "fail"),
				slog.String("message_id", m.ID),
				slog.String("err", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authentic checks the provider's request signature when a secret is configured.
func (s *Server) authentic(r *http.Request, body []byte) bool {
	ch := s.opts.Channel
	switch ch.Provider {
	case config.ProviderTelegram:
		if ch.VerifyToken == "" {
			return true
		}
		return secretEqual(r.Header.Get(telegramSecretHeader), ch.VerifyToken)
	default:
		if ch.AppSecret == "" {
			return true
		}
		return validSignature(r.Header.Get(signatureHeader), body, ch.AppSecret)
	}
}

// validSignature checks an "sha256=<hex>" HMAC of body.
func validSignature(header string, body []byte, secret string) bool {
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func secretEqual(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "pong")
}

type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Sessions       int    `json:"sessions"`
	DispatchErrors uint64 `json:"dispatch_errors"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Version: buildinfo.Version}
	if s.opts.Stats != nil {
		resp.Sessions = s.opts.Stats.Sessions()
		resp.DispatchErrors = s.opts.Stats.DispatchErrors()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
