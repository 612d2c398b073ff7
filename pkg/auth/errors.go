package auth

import "github.com/contractguard/contractguard/pkg/apperrors"

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong
	ErrInvalidCredentials = apperrors.Unauthorized("invalid email or password")
	// ErrInvalidToken is returned for unparseable, forged or expired tokens
	ErrInvalidToken = apperrors.Unauthorized("invalid token")
	// ErrStaleToken is returned when the token's version is behind the user's
	ErrStaleToken = apperrors.Unauthorized("session expired")
	// ErrSessionRevoked is returned for a token whose session was logged out
	ErrSessionRevoked = apperrors.Unauthorized("session logged out")
	// ErrExternalLogin is returned when an identity provider login cannot be verified
	ErrExternalLogin = apperrors.Unauthorized("identity provider login failed")
	// ErrUnverifiedEmail is returned when the identity provider has not verified the email
	ErrUnverifiedEmail = apperrors.Unauthorized("identity provider email is not verified")
	// ErrUserNotFound is returned when a user id or email does not exist
	ErrUserNotFound = apperrors.NotFound("user not found")
	// ErrEmailTaken is returned when registering an email already in use
	ErrEmailTaken = apperrors.Conflict("email already registered")
)
