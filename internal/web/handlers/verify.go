package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/logging"
	"github.com/harhit22/new-auto-attendace/internal/store"
	"github.com/harhit22/new-auto-attendace/internal/verify"
	"go.uber.org/zap"
)

// Verifier runs the verification pipeline.
type Verifier interface {
	Verify(ctx context.Context, req verify.Request) face.VerificationResult
}

// Gallery provides the current identity snapshot.
type Gallery interface {
	Snapshot() *store.Snapshot
}

// VerifyHandler serves 1:1 verification and 1:N identification.
type VerifyHandler struct {
	pipeline Verifier
	gallery  Gallery
	logger   *zap.Logger
}

// NewVerifyHandler creates a verify handler.
func NewVerifyHandler(pipeline Verifier, gallery Gallery, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{pipeline: pipeline, gallery: gallery, logger: logging.Or(logger)}
}

// VerifyResponse is the verification result with the request ID attached.
type VerifyResponse struct {
	face.VerificationResult
	RequestID string `json:"request_id,omitempty"`
}

// Verify handles POST /verify: frames[] and/or image checked against identity_id.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	req, form, ok := h.parse(w, r)
	if !ok {
		return
	}
	if form.IdentityID == "" {
		respondError(w, http.StatusBadRequest, "identity_id is required")
		return
	}

	id, found := h.gallery.Snapshot().Get(form.IdentityID)
	if !found {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	req.Claimed = &id
	h.run(w, r, req)
}

// Identify handles POST /identify: frames[] and/or image searched in the gallery.
func (h *VerifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	req, _, ok := h.parse(w, r)
	if !ok {
		return
	}
	h.run(w, r, req)
}

func (h *VerifyHandler) parse(w http.ResponseWriter, r *http.Request) (verify.Request, verifyForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidForm)
		return verify.Request{}, verifyForm{}, false
	}

	form, err := parseVerifyForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return verify.Request{}, form, false
	}

	frames, skipped, err := readFrames(r.MultipartForm.File[fieldFrames], constants.MaxBurstFrames)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return verify.Request{}, form, false
	}
	if len(skipped) > 0 {
		h.logger.Warn("skipping undecodable frames",
			zap.String("request_id", requestID(r)),
			zap.Ints("frames", skipped),
			zap.Int("kept", len(frames)),
		)
	}
	still, err := readStill(r.MultipartForm)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return verify.Request{}, form, false
	}

	return verify.Request{
		Frames:         frames,
		Still:          still,
		ChallengeIndex: challengePosition(frames, form.ChallengeFrame),
		Family:         family(form.Family),
		Org:            form.Org,
	}, form, true
}

func (h *VerifyHandler) run(w http.ResponseWriter, r *http.Request, req verify.Request) {
	res := h.pipeline.Verify(r.Context(), req)

	status := http.StatusOK
	switch {
	case res.Gate == face.GateInput:
		status = http.StatusBadRequest
	case errors.Is(res.Err, face.ErrModelUnavailable):
		status = http.StatusServiceUnavailable
	}

	if res.Err != nil && status != http.StatusOK {
		h.logger.Warn("verification request failed",
			zap.String("request_id", requestID(r)),
			zap.String("gate", string(res.Gate)),
			zap.Error(res.Err),
		)
	}
	respondJSON(w, status, VerifyResponse{VerificationResult: res, RequestID: requestID(r)})
}
