package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blacktop/polybot"
	"github.com/blacktop/polybot/internal/logutil"
)

// Result is the outcome of a post on one network.
type Result struct {
	Service string
	// Refs holds one reference per published part, in thread order.
	Refs []polybot.PostRef
	// Dropped counts images left out because of the network's limit.
	Dropped int
	// Skipped is set when the post was declined in interactive mode.
	Skipped bool
	Err     error
}

// Last returns the reference of the last published part.
func (r Result) Last() (polybot.PostRef, bool) {
	if len(r.Refs) == 0 {
		return polybot.PostRef{}, false
	}
	return r.Refs[len(r.Refs)-1], true
}

// Results are the outcomes of one Post, in service order.
type Results []Result

// Err joins the failures of all networks, or returns nil. Each failure is
// prefixed with its service name unless its message already starts with it.
func (rs Results) Err() error {
	var errs []error
	for _, r := range rs {
		switch {
		case r.Err == nil:
		case strings.HasPrefix(r.Err.Error(), r.Service+":"):
			errs = append(errs, r.Err)
		default:
			errs = append(errs, fmt.Errorf("%s: %w", r.Service, r.Err))
		}
	}
	return errors.Join(errs...)
}

// InReplyTo maps each network that published to its last part, ready to be
// used as Request.InReplyTo for a follow-up.
func (rs Results) InReplyTo() map[string]polybot.PostRef {
	out := make(map[string]polybot.PostRef, len(rs))
	for _, r := range rs {
		if ref, ok := r.Last(); ok {
			out[r.Service] = ref
		}
	}
	return out
}

// Post publishes req to every active service. A failure on one network is
// logged and recorded in its Result; the remaining networks still get the post.
func (b *Bot) Post(ctx context.Context, req polybot.Request) Results {
	if len(req.Candidates) > 0 {
		logutil.Infof("> %s", req.Candidates[0])
	}
	for _, img := range req.Images {
		logutil.Infof("image: %s", img)
	}

	results := make(Results, 0, len(b.services))
	for _, svc := range b.services {
		res := b.postTo(ctx, svc, req)
		if res.Err != nil {
			logutil.Errorf("error posting to %s: %v", res.Service, res.Err)
		}
		results = append(results, res)
	}
	return results
}

func (b *Bot) postTo(ctx context.Context, svc polybot.Service, req polybot.Request) Result {
	res := Result{Service: svc.Name()}

	plan, err := polybot.Prepare(req, svc.Profile())
	if err != nil {
		res.Err = err
		return res
	}
	res.Dropped = plan.Dropped
	if plan.Dropped > 0 {
		logutil.Warnf("%s accepts %d images per post; dropping %d", res.Service, len(plan.Images), plan.Dropped)
	}

	if b.opts.Interactive {
		ok, err := b.prompter().Confirm(fmt.Sprintf("Post to %s:\n%s\n", res.Service, strings.Join(plan.Parts, "\n---\n")))
		if err != nil {
			res.Err = err
			return res
		}
		if !ok {
			logutil.Infof("skipping %s", res.Service)
			res.Skipped = true
			return res
		}
	}

	var parent *polybot.PostRef
	if ref, ok := req.InReplyTo[res.Service]; ok {
		parent = &ref
	}
	for i, part := range plan.Parts {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		post := polybot.Post{Text: part, ReplyTo: parent}
		if i == 0 {
			post.Images = plan.Images
		}
		ref, err := svc.Publish(ctx, post)
		if err != nil {
			if len(plan.Parts) > 1 {
				err = fmt.Errorf("part %d/%d: %w", i+1, len(plan.Parts), err)
			}
			res.Err = err
			return res
		}
		res.Refs = append(res.Refs, ref)
		parent = &ref
	}
	logutil.Infof("posted to %s", res.Service)
	return res
}
