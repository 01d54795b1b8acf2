package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout  = 60 * time.Second
	NotifyHTTPTimeout   = 10 * time.Second
	ServerReadTimeout   = 15 * time.Second
	ServerWriteTimeout  = 15 * time.Second
	ShutdownGracePeriod = 10 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour // 7 days
)

// Session constants
const (
	// SessionName is the cookie name used for the signed session
	SessionName = "feedback-session"
	// SessionPath is the cookie path
	SessionPath = "/"
	// SessionHTTPOnly marks the session cookie http-only
	SessionHTTPOnly = true
	// SessionSecure marks the session cookie secure (overridden in debug mode)
	SessionSecure = false
)

// Listing and summary constants
const (
	// UnresolvedListLimit bounds the unresolved feedback listing
	UnresolvedListLimit = 500
	// StatusNoteMaxChars is the number of note characters used for the
	// status summary when no issue was selected
	StatusNoteMaxChars = 100
	// DefaultStatusSummary is the placeholder summary when both issues and
	// note are empty (validation should prevent this from being reached)
	DefaultStatusSummary = "Bildirim"
)

// DefaultCSP is the content security policy applied by the secure middleware
const DefaultCSP = "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'"
