package models

// ClassificationFlags describes the source material available to a request.
// Derived once by the reference resolver and immutable afterwards.
type ClassificationFlags struct {
	HasActiveImage    bool `json:"has_active_image"`
	HasUploadedImage  bool `json:"has_uploaded_image"`
	HasNamedReference bool `json:"has_named_reference"`
	ReferenceCount    int  `json:"reference_count"`
}

// ResolvedReference pairs an @tag mention with the image it resolved to.
type ResolvedReference struct {
	Tag      string `json:"tag"`
	ImageURL string `json:"image_url"`
}

// RouteRequest is the inbound request to the routing engine. SessionID is
// optional; an empty value lets the engine detect the session from activity.
// APIKey carries the caller's credential for per-key rate limiting and is
// never serialized.
type RouteRequest struct {
	Prompt         string   `json:"prompt"`
	UserID         string   `json:"user_id"`
	SessionID      string   `json:"session_id,omitempty"`
	HasActiveImage bool     `json:"has_active_image"`
	UploadedImages []string `json:"uploaded_images,omitempty"`
	APIKey         string   `json:"-"`
}
