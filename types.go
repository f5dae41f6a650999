package polybot

import "context"

// Profile describes the static limits of one network.
type Profile struct {
	// MaxTextLength is counted in code points. Zero means unlimited.
	MaxTextLength int
	// MaxImageBytes is the encoded size limit per image. Zero means unlimited.
	MaxImageBytes int64
	// MaxImagePixels bounds width*height. Zero means unlimited.
	MaxImagePixels int
	// MaxImagesPerPost caps attachments on a single post.
	MaxImagesPerPost int
	// ImageTypes lists the accepted MIME types, most preferred first.
	ImageTypes []string
}

// SupportsImageType reports whether mimeType is accepted by the network.
func (p Profile) SupportsImageType(mimeType string) bool {
	for _, t := range p.ImageTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// PostRef identifies a published post so later posts can reply to it.
type PostRef struct {
	// ID is the tweet/status ID, or the record URI on Bluesky.
	ID string
	// CID is the content hash of a Bluesky record.
	CID string
	// Root is the first post of the thread, when it differs from this one.
	Root *PostRef
}

// Post is a single, already normalized unit handed to a Service.
type Post struct {
	Text    string
	Images  []Image
	ReplyTo *PostRef
}

// Service abstracts a social network that can publish content.
type Service interface {
	Name() string
	Profile() Profile
	// Auth verifies the credentials against the network.
	Auth(ctx context.Context) error
	Publish(ctx context.Context, post Post) (PostRef, error)
}

// Request defines the message payload shared across all services.
type Request struct {
	// Candidates are equivalent renderings of the post in caller order.
	Candidates []string
	Images     []Image
	// Wrap splits the first candidate into a thread when no candidate fits.
	Wrap bool
	// Marker renders pagination markers. DefaultMarker is used when nil.
	Marker Marker
	// InReplyTo maps a service name to the post to reply to.
	InReplyTo map[string]PostRef
}

// NewRequest builds a Request from one or more candidate texts.
func NewRequest(candidates ...string) Request {
	return Request{Candidates: candidates}
}
