package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/store"
	"github.com/harhit22/new-auto-attendace/internal/verify"
	"github.com/harhit22/new-auto-attendace/internal/web/middleware"
)

type fakePipeline struct {
	res face.VerificationResult
	got *verify.Request
}

func (f *fakePipeline) Verify(_ context.Context, req verify.Request) face.VerificationResult {
	f.got = &req
	return f.res
}

func galleryWith(t *testing.T, ids ...face.StoredIdentity) *store.Gallery {
	t.Helper()
	g := store.NewGallery()
	if err := g.Load(context.Background(), ids); err != nil {
		t.Fatalf("failed to load gallery: %v", err)
	}
	return g
}

func storedIdentity(t *testing.T, id, name, org string) face.StoredIdentity {
	t.Helper()
	v := make([]float32, face.Light.Dim())
	v[0] = 1
	d, err := face.NewDescriptor(face.Light, v)
	if err != nil {
		t.Fatalf("failed to build descriptor: %v", err)
	}
	si, err := face.NewStoredIdentity(id, name, org, face.Light, []face.Descriptor{d})
	if err != nil {
		t.Fatalf("failed to build identity: %v", err)
	}
	return si
}

func TestVerifyHandler_Verify(t *testing.T) {
	dist, conf := 0.12, 0.88
	pipeline := &fakePipeline{res: face.VerificationResult{
		Accepted:   true,
		Reason:     "Face verified.",
		Distance:   &dist,
		Confidence: &conf,
		Method:     face.MethodKNN,
		IdentityID: "e1",
	}}
	handler := NewVerifyHandler(pipeline, galleryWith(t, storedIdentity(t, "e1", "Jan", "acme")), nil)

	req := multipartRequest(t, "/api/v1/verify", map[string]string{
		fieldIdentityID:     "e1",
		fieldChallengeFrame: "4",
	}, append(burst(t, 10), formFile{field: fieldImage, name: "still.png", data: pngBytes(t, 64, 48)}))
	req = req.WithContext(middleware.SetRequestIDInContext(req.Context(), "req-1"))
	recorder := httptest.NewRecorder()

	handler.Verify(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Accepted   bool    `json:"accepted"`
		Distance   float64 `json:"distance"`
		Method     string  `json:"method"`
		IdentityID string  `json:"identity_id"`
		RequestID  string  `json:"request_id"`
	}
	parseJSONResponse(t, recorder, &resp)
	if !resp.Accepted || resp.IdentityID != "e1" || resp.Distance != 0.12 || resp.RequestID != "req-1" {
		t.Errorf("unexpected response %+v", resp)
	}

	got := pipeline.got
	if got == nil {
		t.Fatal("pipeline not called")
	}
	if len(got.Frames) != 10 {
		t.Errorf("expected 10 frames, got %d", len(got.Frames))
	}
	for i, f := range got.Frames {
		if f.Index != i {
			t.Errorf("frame %d has index %d", i, f.Index)
		}
	}
	if got.Still == nil || got.Still.Width() != 64 {
		t.Errorf("expected a 64px wide still, got %+v", got.Still)
	}
	if got.Claimed == nil || got.Claimed.ID != "e1" {
		t.Errorf("expected claimed identity e1, got %+v", got.Claimed)
	}
	if got.ChallengeIndex == nil || *got.ChallengeIndex != 4 {
		t.Errorf("expected challenge index 4, got %v", got.ChallengeIndex)
	}
}

func TestVerifyHandler_Verify_BadRequests(t *testing.T) {
	handler := NewVerifyHandler(&fakePipeline{}, galleryWith(t, storedIdentity(t, "e1", "Jan", "")), nil)

	tests := []struct {
		name    string
		fields  map[string]string
		files   []formFile
		status  int
		message string
	}{
		{
			name:    "missing identity",
			files:   burst(t, 1),
			status:  http.StatusBadRequest,
			message: "identity_id is required",
		},
		{
			name:    "unknown identity",
			fields:  map[string]string{fieldIdentityID: "nobody"},
			files:   burst(t, 1),
			status:  http.StatusNotFound,
			message: "identity not found",
		},
		{
			name:    "challenge frame not a number",
			fields:  map[string]string{fieldIdentityID: "e1", fieldChallengeFrame: "x"},
			files:   burst(t, 1),
			status:  http.StatusBadRequest,
			message: `invalid challenge_frame "x"`,
		},
		{
			name:    "too many frames",
			fields:  map[string]string{fieldIdentityID: "e1"},
			files:   burst(t, 61),
			status:  http.StatusBadRequest,
			message: errTooManyFrames.Error(),
		},
		{
			name:   "unknown family",
			fields: map[string]string{fieldIdentityID: "e1", fieldFamily: "medium"},
			files:  burst(t, 1),
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Verify(recorder, multipartRequest(t, "/api/v1/verify", tt.fields, tt.files))

			assertStatusCode(t, recorder, tt.status)
			if tt.message != "" {
				assertJSONError(t, recorder, tt.message)
			}
		})
	}
}

func TestVerifyHandler_SkipsUndecodableFrames(t *testing.T) {
	pipeline := &fakePipeline{res: face.VerificationResult{Accepted: true, IdentityID: "e1"}}
	handler := NewVerifyHandler(pipeline, galleryWith(t, storedIdentity(t, "e1", "Jan", "")), nil)

	files := burst(t, 10)
	files[2].data = []byte("not an image")
	files[6].data = nil
	req := multipartRequest(t, "/api/v1/verify", map[string]string{
		fieldIdentityID:     "e1",
		fieldChallengeFrame: "4",
	}, files)
	recorder := httptest.NewRecorder()

	handler.Verify(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	got := pipeline.got
	if got == nil {
		t.Fatal("pipeline not called")
	}
	want := []int{0, 1, 3, 4, 5, 7, 8, 9}
	if len(got.Frames) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(got.Frames))
	}
	for i, f := range got.Frames {
		if f.Index != want[i] {
			t.Errorf("frame %d has index %d, want %d", i, f.Index, want[i])
		}
	}
	// Frames after the challenge position are the ones uploaded after frame 4.
	if got.ChallengeIndex == nil || *got.ChallengeIndex != 3 {
		t.Errorf("expected challenge position 3, got %v", got.ChallengeIndex)
	}
}

func TestVerifyHandler_AllFramesUndecodable(t *testing.T) {
	pipeline := &fakePipeline{res: face.Reject(face.GateInput, "No image provided.", nil)}
	handler := NewVerifyHandler(pipeline, galleryWith(t, storedIdentity(t, "e1", "Jan", "")), nil)

	files := []formFile{{field: fieldFrames, name: "x.png", data: []byte("not an image")}}
	recorder := httptest.NewRecorder()
	handler.Verify(recorder, multipartRequest(t, "/api/v1/verify", map[string]string{fieldIdentityID: "e1"}, files))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	if pipeline.got == nil || len(pipeline.got.Frames) != 0 {
		t.Errorf("expected the pipeline to see no frames, got %+v", pipeline.got)
	}
}

func TestChallengePosition(t *testing.T) {
	frames := []face.Frame{{Index: 0}, {Index: 2}, {Index: 3}, {Index: 5}}
	tests := []struct {
		name      string
		challenge *int
		want      *int
	}{
		{"unset", nil, nil},
		{"kept frame", intPtr(3), intPtr(2)},
		{"dropped frame", intPtr(4), intPtr(2)},
		{"before the first kept frame", intPtr(-1), intPtr(-1)},
		{"past the end", intPtr(40), intPtr(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := challengePosition(frames, tt.challenge)
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("challengePosition(%v) = %v, want %v", tt.challenge, got, tt.want)
			}
		})
	}
}

func intPtr(i int) *int { return &i }

func TestVerifyHandler_NotMultipart(t *testing.T) {
	handler := NewVerifyHandler(&fakePipeline{}, galleryWith(t), nil)
	recorder := httptest.NewRecorder()

	handler.Verify(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/verify", nil))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, errInvalidForm)
}

func TestVerifyHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		res    face.VerificationResult
		status int
	}{
		{"rejected at identity", face.Reject(face.GateIdentity, "Face verification failed.", nil), http.StatusOK},
		{"liveness fake", face.VerificationResult{Gate: face.GateLiveness, Reason: "Fake eyes detected.", LivenessFailed: true}, http.StatusOK},
		{"input problem", face.Reject(face.GateInput, "No image provided.", nil), http.StatusBadRequest},
		{"model down", face.Reject(face.GateIdentity, "Face recognition is temporarily unavailable. Please try again.",
			face.NewModelError("arcface", errors.New("timeout"))), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewVerifyHandler(&fakePipeline{res: tt.res}, galleryWith(t), nil)
			recorder := httptest.NewRecorder()

			handler.Identify(recorder, multipartRequest(t, "/api/v1/identify", nil, burst(t, 1)))

			assertStatusCode(t, recorder, tt.status)
			var resp face.VerificationResult
			parseJSONResponse(t, recorder, &resp)
			if resp.Reason != tt.res.Reason || resp.Gate != tt.res.Gate {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}
}

func TestVerifyHandler_Identify(t *testing.T) {
	pipeline := &fakePipeline{}
	handler := NewVerifyHandler(pipeline, galleryWith(t), nil)
	recorder := httptest.NewRecorder()

	handler.Identify(recorder, multipartRequest(t, "/api/v1/identify", map[string]string{
		fieldOrg:    "ACME",
		fieldFamily: "heavy",
	}, burst(t, 3)))

	assertStatusCode(t, recorder, http.StatusOK)
	if pipeline.got.Claimed != nil {
		t.Error("identify must not claim an identity")
	}
	if pipeline.got.Org != "ACME" || pipeline.got.Family != face.Heavy {
		t.Errorf("unexpected request %+v", pipeline.got)
	}
}
