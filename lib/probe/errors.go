package probe

import "fmt"

// IdentityError means that a device failed to prove ownership of its pinned
// public key, or that the key exchange response was malformed.
// The device at that address is treated as "not verified".
type IdentityError struct {
	Address string
	Reason  string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity of %v not verified: %v", e.Address, e.Reason)
}

// SessionError means that the device rejected the session cookie.
// It triggers a renewal with the bearer token.
type SessionError struct {
	Status int
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session rejected with status %v", e.Status)
}

// CredentialError means that the device rejected the bearer token.
// This is terminal for the device until the user logs in again.
type CredentialError struct {
	Status int
	Body   string
}

func (e *CredentialError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("bearer token rejected (%v): %v", e.Status, e.Body)
	}
	return fmt.Sprintf("bearer token rejected (%v)", e.Status)
}
