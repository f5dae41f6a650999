package polybot

import (
	"errors"
	"fmt"
)

// Plan is a request fitted to one network: the ordered posts of a thread
// and the images for its first post.
type Plan struct {
	Parts  []string
	Images []Image
	// Dropped counts images beyond the network's per-post limit.
	Dropped int
}

// Prepare fits req to the profile p: it picks or wraps the text and
// normalizes the images. It has no side effects.
func Prepare(req Request, p Profile) (Plan, error) {
	if len(req.Candidates) == 0 {
		return Plan{}, ErrNoCandidates
	}

	var plan Plan
	images := req.Images
	if p.MaxImagesPerPost > 0 && len(images) > p.MaxImagesPerPost {
		plan.Dropped = len(images) - p.MaxImagesPerPost
		images = images[:p.MaxImagesPerPost]
	}
	for i, img := range images {
		normalized, err := Normalize(img, p)
		if err != nil {
			return Plan{}, fmt.Errorf("image %d: %w", i+1, err)
		}
		plan.Images = append(plan.Images, normalized)
	}

	text, err := Select(req.Candidates, p.MaxTextLength)
	if err == nil {
		plan.Parts = []string{text}
		return plan, nil
	}

	var noFit *NoFittingMessageError
	if !req.Wrap || !errors.As(err, &noFit) {
		return Plan{}, err
	}
	parts, err := Wrap(req.Candidates[0], p.MaxTextLength, req.Marker)
	if err != nil {
		return Plan{}, err
	}
	plan.Parts = parts
	return plan, nil
}
