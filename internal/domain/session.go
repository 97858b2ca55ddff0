package domain

// Session holds the authenticated state of the client. CurrentUser is
// non-nil only when Token is non-empty and was validated against the
// profile endpoint.
type Session struct {
	Token       string
	CurrentUser *User
}

// Active reports whether the session carries a validated identity.
func (s *Session) Active() bool {
	return s.Token != "" && s.CurrentUser != nil
}
