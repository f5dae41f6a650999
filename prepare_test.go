package polybot

import (
	"errors"
	"strings"
	"testing"
)

func TestPrepareSelects(t *testing.T) {
	req := NewRequest("a long rendering that only roomy networks take", "short one")
	plan, err := Prepare(req, Profile{MaxTextLength: 20})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(plan.Parts) != 1 || plan.Parts[0] != "short one" {
		t.Errorf("Parts = %q, want [\"short one\"]", plan.Parts)
	}

	plan, err = Prepare(req, Profile{MaxTextLength: 500})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if plan.Parts[0] != req.Candidates[0] {
		t.Errorf("Parts[0] = %q, want the long rendering", plan.Parts[0])
	}
}

func TestPrepareNoFitWithoutWrap(t *testing.T) {
	_, err := Prepare(NewRequest(strings.Repeat("x", 30)), Profile{MaxTextLength: 10})
	var noFit *NoFittingMessageError
	if !errors.As(err, &noFit) {
		t.Errorf("Prepare error = %v, want NoFittingMessageError", err)
	}
}

func TestPrepareWraps(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("thread me please ", 10))
	req := NewRequest(text, "this alternative also does not fit in twenty")
	req.Wrap = true
	plan, err := Prepare(req, Profile{MaxTextLength: 40})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(plan.Parts) < 2 {
		t.Fatalf("Parts = %q, want a thread", plan.Parts)
	}
	for _, p := range plan.Parts {
		if Length(p) > 40 {
			t.Errorf("part %q exceeds limit", p)
		}
	}
	if !strings.HasPrefix(plan.Parts[0], "thread me") {
		t.Errorf("wrapped the wrong candidate: %q", plan.Parts[0])
	}
}

func TestPrepareImages(t *testing.T) {
	img := Image{Data: noisePNG(t, 16, 16, 255), MIMEType: MIMEPNG}
	req := NewRequest("pics")
	req.Images = []Image{img, img, img}
	plan, err := Prepare(req, Profile{MaxImagesPerPost: 2, ImageTypes: []string{MIMEPNG}})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(plan.Images) != 2 || plan.Dropped != 1 {
		t.Errorf("got %d images, %d dropped; want 2 and 1", len(plan.Images), plan.Dropped)
	}

	req.Images = []Image{{Data: []byte("not an image at all"), MIMEType: "text/plain"}}
	if _, err := Prepare(req, Profile{ImageTypes: []string{MIMEPNG}}); err == nil {
		t.Error("Prepare accepted an undecodable image")
	}
}

func TestPrepareEmpty(t *testing.T) {
	if _, err := Prepare(Request{}, Profile{}); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Prepare error = %v, want ErrNoCandidates", err)
	}
}
