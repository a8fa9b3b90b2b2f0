package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/enroll"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/facematch"
	"github.com/harhit22/new-auto-attendace/internal/imaging"
	"github.com/harhit22/new-auto-attendace/internal/logging"
	"go.uber.org/zap"
)

// Enroller enrols identities from images.
type Enroller interface {
	Enroll(ctx context.Context, req enroll.Request, progress enroll.ProgressFunc) (enroll.Report, error)
}

// IdentityStore deletes persisted identities.
type IdentityStore interface {
	Delete(ctx context.Context, id string) (bool, error)
}

// MutableGallery is a Gallery that can drop identities.
type MutableGallery interface {
	Gallery
	Remove(id string) (bool, error)
}

// Publisher announces gallery changes to other instances.
type Publisher interface {
	Publish(ctx context.Context, identityID string) error
}

// IdentitiesHandler manages enrolled identities.
type IdentitiesHandler struct {
	enroller  Enroller
	store     IdentityStore
	gallery   MutableGallery
	publisher Publisher
	logger    *zap.Logger
}

// NewIdentitiesHandler creates an identities handler.
func NewIdentitiesHandler(enroller Enroller, st IdentityStore, gallery MutableGallery, publisher Publisher, logger *zap.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{
		enroller:  enroller,
		store:     st,
		gallery:   gallery,
		publisher: publisher,
		logger:    logging.Or(logger),
	}
}

// IdentityResponse describes one enrolled identity.
type IdentityResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Org         string `json:"org,omitempty"`
	Family      string `json:"family"`
	Descriptors int    `json:"descriptors"`
}

// EnrollResponse is the outcome of an enrolment.
type EnrollResponse struct {
	IdentityResponse
	Added   int           `json:"added"`
	Skipped []enroll.Skip `json:"skipped,omitempty"`
}

func identityResponse(id face.StoredIdentity) IdentityResponse {
	return IdentityResponse{
		ID:          id.ID,
		Name:        id.Name,
		Org:         id.Org,
		Family:      id.Family.String(),
		Descriptors: len(id.Descriptors),
	}
}

// List returns the enrolled identities, optionally filtered by org and family.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	snap := h.gallery.Snapshot()

	var ids []face.StoredIdentity
	if fam := r.URL.Query().Get(fieldFamily); fam != "" {
		f, err := face.ParseFamily(fam)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		ids = snap.Identities(f, r.URL.Query().Get(fieldOrg))
	} else {
		org := facematch.NormalizeOrgCode(r.URL.Query().Get(fieldOrg))
		for _, id := range snap.All() {
			if org == "" || facematch.NormalizeOrgCode(id.Org) == org {
				ids = append(ids, id)
			}
		}
	}

	out := make([]IdentityResponse, 0, len(ids))
	for _, id := range ids {
		out = append(out, identityResponse(id))
	}
	respondJSON(w, http.StatusOK, out)
}

// Enroll handles POST /identities/{id}/enroll with images[] and a name.
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidForm)
		return
	}

	form := enrollForm{
		IdentityID: chi.URLParam(r, "id"),
		Name:       r.FormValue(fieldName),
		Org:        r.FormValue(fieldOrg),
		Family:     r.FormValue(fieldFamily),
		Append:     r.FormValue(fieldAppend) == "true",
	}
	if err := validate.Struct(form); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	files := r.MultipartForm.File[fieldImages]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no images provided")
		return
	}
	if len(files) > constants.MaxBurstFrames {
		respondError(w, http.StatusBadRequest, errTooManyFrames.Error())
		return
	}

	images := make([]face.Frame, len(files))
	for i, fh := range files {
		images[i] = face.Frame{Index: i}
		data, err := readFile(fh)
		if err != nil {
			continue
		}
		// Undecodable images are reported as skipped by the enroller.
		if frame, err := imaging.DecodeFrame(i, data, constants.MaxImageSize); err == nil {
			images[i] = frame
		}
	}

	req := enroll.Request{
		IdentityID: form.IdentityID,
		Name:       form.Name,
		Org:        facematch.NormalizeOrgCode(form.Org),
		Family:     family(form.Family),
		Images:     images,
	}
	if form.Append {
		if existing, ok := h.gallery.Snapshot().Get(form.IdentityID); ok {
			req.Existing = &existing
		}
	}

	report, err := h.enroller.Enroll(r.Context(), req, nil)
	if err != nil {
		switch {
		case errors.Is(err, enroll.ErrNoUsableImages):
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":   "no usable face found in the images",
				"skipped": report.Skipped,
			})
		case errors.Is(err, context.Canceled):
			respondError(w, http.StatusRequestTimeout, "request cancelled")
		default:
			h.logger.Error("enrolment failed",
				zap.String("request_id", requestID(r)),
				zap.String("identity_id", sanitizeForLog(form.IdentityID)),
				zap.Error(err),
			)
			respondError(w, http.StatusInternalServerError, "failed to enrol identity")
		}
		return
	}

	respondJSON(w, http.StatusCreated, EnrollResponse{
		IdentityResponse: identityResponse(report.Identity),
		Added:            report.Added,
		Skipped:          report.Skipped,
	})
}

// Delete removes an identity from storage and the live gallery.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "identity id is required")
		return
	}

	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete identity", zap.String("identity_id", sanitizeForLog(id)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to delete identity")
		return
	}
	if _, err := h.gallery.Remove(id); err != nil {
		h.logger.Error("failed to update gallery", zap.String("identity_id", sanitizeForLog(id)), zap.Error(err))
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(r.Context(), id); err != nil {
			h.logger.Warn("failed to announce gallery change", zap.String("identity_id", sanitizeForLog(id)), zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
