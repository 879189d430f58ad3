package model

// Session binds an authenticated identity to one connection. It lives in the
// auth manager's table from login until logout or connection close.
type Session struct {
	ConnID   uint64
	Username string
	Role     Role
}
