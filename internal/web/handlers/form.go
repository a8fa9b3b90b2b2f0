package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/imaging"
)

// Multipart field names.
const (
	fieldFrames         = "frames"
	fieldImage          = "image"
	fieldImages         = "images"
	fieldIdentityID     = "identity_id"
	fieldFamily         = "family"
	fieldChallengeFrame = "challenge_frame"
	fieldOrg            = "org"
	fieldName           = "name"
	fieldAppend         = "append"
)

var errTooManyFrames = fmt.Errorf("at most %d frames are accepted", constants.MaxBurstFrames)

// verifyForm holds the scalar fields of a verify or identify request.
type verifyForm struct {
	IdentityID     string `validate:"omitempty,max=128"`
	Family         string `validate:"omitempty,oneof=light heavy"`
	Org            string `validate:"max=128"`
	ChallengeFrame *int   `validate:"omitempty,gte=0"`
}

// enrollForm holds the scalar fields of an enrolment request.
type enrollForm struct {
	IdentityID string `validate:"required,max=128"`
	Name       string `validate:"required,max=256"`
	Org        string `validate:"max=128"`
	Family     string `validate:"omitempty,oneof=light heavy"`
	Append     bool
}

func parseVerifyForm(r *http.Request) (verifyForm, error) {
	f := verifyForm{
		IdentityID: r.FormValue(fieldIdentityID),
		Family:     r.FormValue(fieldFamily),
		Org:        r.FormValue(fieldOrg),
	}
	if s := r.FormValue(fieldChallengeFrame); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return f, fmt.Errorf("invalid %s %q", fieldChallengeFrame, sanitizeForLog(s))
		}
		f.ChallengeFrame = &n
	}
	if err := validate.Struct(f); err != nil {
		return f, err
	}
	return f, nil
}

// family parses an optional family field, defaulting to light.
func family(s string) face.Family {
	if s == "" {
		return face.Light
	}
	f, err := face.ParseFamily(s)
	if err != nil {
		return face.Light
	}
	return f
}

// readFrames decodes every file of a multipart field in upload order. Files
// that cannot be read or decoded are left out and their upload positions
// returned, so the pipeline's frame minimum decides whether enough remain.
// Kept frames carry their upload position as Index.
func readFrames(files []*multipart.FileHeader, maxFrames int) ([]face.Frame, []int, error) {
	if len(files) > maxFrames {
		return nil, nil, errTooManyFrames
	}
	frames := make([]face.Frame, 0, len(files))
	var skipped []int
	for i, fh := range files {
		data, err := readFile(fh)
		if err != nil {
			skipped = append(skipped, i)
			continue
		}
		frame, err := imaging.DecodeFrame(i, data, constants.MaxImageSize)
		if err != nil {
			skipped = append(skipped, i)
			continue
		}
		frames = append(frames, frame)
	}
	return frames, skipped, nil
}

// challengePosition maps an uploaded challenge frame number onto the kept
// frames: frames after the returned position are the ones uploaded after c.
func challengePosition(frames []face.Frame, c *int) *int {
	if c == nil {
		return nil
	}
	pos := -1
	for _, f := range frames {
		if f.Index <= *c {
			pos++
		}
	}
	return &pos
}

// readStill decodes the optional single image field.
func readStill(form *multipart.Form) (*face.Frame, error) {
	files := form.File[fieldImage]
	if len(files) == 0 {
		return nil, nil
	}
	data, err := readFile(files[0])
	if err != nil {
		return nil, err
	}
	frame, err := imaging.DecodeFrame(-1, data, constants.MaxImageSize)
	if err != nil {
		return nil, err
	}
	return &frame, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %s", sanitizeForLog(fh.Filename))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("failed to read file")
	}
	return data, nil
}
