// Package httpapi exposes the small illustrative subset of spec §6's
// HTTP/JSON surface that exercises CodeWaiter and BatchChecker directly;
// the full REST surface (routing, JWT auth, CORS, static assets) is out
// of scope and left to whatever framework a deployment wraps this in.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stoik/mailhouse/internal/apperr"
	"github.com/stoik/mailhouse/internal/batch"
	"github.com/stoik/mailhouse/internal/codewait"
	"github.com/stoik/mailhouse/internal/ports"
)

// GetCodeHandler implements POST /api/emails/get_code.
type GetCodeHandler struct {
	Storage ports.Storage
	Waiter  *codewait.Waiter
	Log     zerolog.Logger
}

type getCodeRequest struct {
	Email   string `json:"email"`
	Keyword string `json:"keyword"`
	Timeout int    `json:"timeout"`
}

type getCodeResponse struct {
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Code         string    `json:"code,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	Sender       string    `json:"sender,omitempty"`
	ReceivedTime time.Time `json:"received_time,omitempty"`
}

func (h *GetCodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req getCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, getCodeResponse{Success: false, Error: "email is required"})
		return
	}

	mailbox, err := h.Storage.GetMailboxByAddress(r.Context(), req.Email, nil)
	if err != nil || mailbox == nil {
		writeJSON(w, http.StatusNotFound, getCodeResponse{Success: false, Error: "mailbox not found"})
		return
	}

	timeout := time.Duration(req.Timeout) * time.Second
	result, err := h.Waiter.WaitForCode(r.Context(), mailbox.UserID, mailbox.ID, req.Keyword, timeout)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, apperr.ErrTimeout) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, getCodeResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, getCodeResponse{
		Success:      true,
		Code:         result.Code,
		Subject:      result.Subject,
		Sender:       result.Sender,
		ReceivedTime: result.ReceivedTime,
	})
}

// CheckOneHandler implements POST /api/emails/<id>/check.
type CheckOneHandler struct {
	Checker *batch.Checker
}

func (h *CheckOneHandler) ServeHTTP(w http.ResponseWriter, r *http.Request, mailboxID uuid.UUID) {
	result := h.Checker.CheckOne(r.Context(), mailboxID, nil)
	switch {
	case result.Success:
		writeJSON(w, http.StatusOK, result)
	case result.Message == "mailbox is already being processed":
		writeJSON(w, http.StatusConflict, result)
	default:
		writeJSON(w, http.StatusRequestTimeout, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
