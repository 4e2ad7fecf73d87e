package app

import (
	"context"
	"fmt"

	"shotreview/pkg/annotation"
	"shotreview/pkg/capture"
	"shotreview/pkg/domain"
)

// BlobPathPrefix is where the server exposes the in-memory image store.
const BlobPathPrefix = "/blobs"

// CaptureRequest describes one selection on a rendering surface.
type CaptureRequest struct {
	JobID        string
	Surface      capture.Surface
	Selection    capture.Selection
	ModelVersion string
}

// CaptureOutcome is a stored screenshot plus how it was produced.
type CaptureOutcome struct {
	annotation.CreateResult
	Rect     capture.Rect
	Attempts []capture.Attempt
}

// Capture runs the strategy chain on the selection and records the image in
// the job's session. A too-small selection creates nothing.
func (a *App) Capture(ctx context.Context, actor domain.User, req CaptureRequest) (CaptureOutcome, error) {
	session, err := a.workspace.Session(ctx, req.JobID)
	if err != nil {
		return CaptureOutcome{}, err
	}
	res, err := a.engine.Capture(ctx, req.Surface, req.Selection)
	if err != nil {
		return CaptureOutcome{Rect: res.Rect}, err
	}
	img, err := capture.EncodeResult(res)
	if err != nil {
		return CaptureOutcome{}, fmt.Errorf("encode capture: %w", err)
	}
	label := req.ModelVersion
	if label == "" {
		label = req.Surface.ModelLabel
	}
	created, err := session.Create(ctx, actor, img, domain.CaptureMeta{ModelVersion: label, Method: res.Method})
	if err != nil {
		return CaptureOutcome{}, err
	}
	return CaptureOutcome{CreateResult: created, Rect: res.Rect, Attempts: res.Attempts}, nil
}
