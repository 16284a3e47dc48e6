package session

// Session is the server-side record of one authenticated device.
// Timestamps are unix seconds.
type Session struct {
	SchemaVersion uint8
	SessionID     string
	UserID        string
	Device        string
	IP            string
	CreatedAt     int64
	LastActive    int64
	ExpiresAt     int64
}

// Expired reports whether the session is past its absolute expiry at now (unix seconds).
func (s *Session) Expired(now int64) bool {
	return s.ExpiresAt > 0 && now >= s.ExpiresAt
}
