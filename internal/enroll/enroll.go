// Package enroll builds an identity's descriptor set from a batch of images.
package enroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/imaging"
	"github.com/harhit22/new-auto-attendace/internal/logging"
	"go.uber.org/zap"
)

// ErrNoUsableImages means every image was skipped.
var ErrNoUsableImages = errors.New("no usable images")

// Describer computes a face descriptor.
type Describer interface {
	Describe(ctx context.Context, frame face.Frame, family face.Family) (*face.Descriptor, error)
}

// Saver persists an identity.
type Saver interface {
	Save(ctx context.Context, id face.StoredIdentity) error
}

// Gallery receives the enrolled identity so it is matchable immediately.
type Gallery interface {
	Replace(id face.StoredIdentity) error
}

// Publisher announces the change to other instances.
type Publisher interface {
	Publish(ctx context.Context, identityID string) error
}

// Request is one enrolment.
type Request struct {
	// IdentityID is generated when empty.
	IdentityID string
	Name       string
	Org        string
	Family     face.Family
	Images     []face.Frame
	// Existing descriptors of the same family are kept and the new ones appended.
	Existing *face.StoredIdentity
}

// Skip records an image that did not contribute a descriptor.
type Skip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Report summarises an enrolment.
type Report struct {
	Identity face.StoredIdentity `json:"-"`
	Added    int                 `json:"added"`
	Total    int                 `json:"total"`
	Skipped  []Skip              `json:"skipped,omitempty"`
}

// ProgressFunc is called after each image.
type ProgressFunc func(done, total int)

// Service enrols identities.
type Service struct {
	describer Describer
	saver     Saver
	gallery   Gallery
	publisher Publisher
	cfg       config.EnrollConfig
	logger    *zap.Logger
}

// New creates an enrolment service. gallery, publisher and logger may be nil.
func New(describer Describer, saver Saver, gallery Gallery, publisher Publisher, cfg config.EnrollConfig, logger *zap.Logger) *Service {
	return &Service{
		describer: describer,
		saver:     saver,
		gallery:   gallery,
		publisher: publisher,
		cfg:       cfg,
		logger:    logging.Or(logger),
	}
}

// Enroll describes every image, skipping poor or faceless ones, and stores
// the resulting identity. At least one image must yield a descriptor.
func (s *Service) Enroll(ctx context.Context, req Request, progress ProgressFunc) (Report, error) {
	if req.Family.Dim() == 0 {
		req.Family = face.Light
	}
	if req.IdentityID == "" {
		req.IdentityID = uuid.NewString()
	}

	var (
		report Report
		descs  []face.Descriptor
	)
	if req.Existing != nil && req.Existing.Family == req.Family {
		descs = append(descs, req.Existing.Descriptors...)
	}

	for i, img := range req.Images {
		d, reason, err := s.describe(ctx, img, req.Family)
		if err != nil {
			return Report{}, err
		}
		if d == nil {
			report.Skipped = append(report.Skipped, Skip{Index: i, Reason: reason})
			s.logger.Info("enrolment image skipped", zap.Int("index", i), zap.String("reason", reason))
		} else {
			descs = append(descs, *d)
			report.Added++
		}
		if progress != nil {
			progress(i+1, len(req.Images))
		}
	}

	if report.Added == 0 {
		return report, fmt.Errorf("%d images for %s: %w", len(req.Images), req.IdentityID, ErrNoUsableImages)
	}

	id, err := face.NewStoredIdentity(req.IdentityID, req.Name, req.Org, req.Family, descs)
	if err != nil {
		return report, err
	}
	if err := s.saver.Save(ctx, id); err != nil {
		return report, fmt.Errorf("save identity %s: %w", id.ID, err)
	}
	if s.gallery != nil {
		if err := s.gallery.Replace(id); err != nil {
			return report, fmt.Errorf("update gallery: %w", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, id.ID); err != nil {
			s.logger.Warn("failed to announce gallery change", zap.String("identity_id", id.ID), zap.Error(err))
		}
	}

	report.Identity = id
	report.Total = len(descs)
	s.logger.Info("identity enrolled",
		zap.String("identity_id", id.ID),
		zap.String("family", id.Family.String()),
		zap.Int("added", report.Added),
		zap.Int("total", report.Total),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

// describe returns the descriptor of one image, or nil with a skip reason.
// Only cancellation is returned as an error.
func (s *Service) describe(ctx context.Context, img face.Frame, family face.Family) (*face.Descriptor, string, error) {
	if img.Image == nil {
		return nil, "undecodable image", nil
	}
	if q := imaging.AssessQuality(img.Image); q.Overall < s.cfg.MinQuality {
		return nil, fmt.Sprintf("low image quality (%.2f)", q.Overall), nil
	}

	d, err := s.describer.Describe(ctx, img, family)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		return nil, "face model error", nil
	}
	if d == nil {
		return nil, "no face detected", nil
	}
	return d, "", nil
}
