package apperrors

import (
	"errors"
	"fmt"
)

// Error kinds. Every error below wraps exactly one of them,
// so callers may branch either on the kind or on the concrete error.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrAuthentication = errors.New("authentication failed")
	ErrForbidden      = errors.New("forbidden")
)

var (
	ErrEmailTaken        = fmt.Errorf("%w: email is not valid", ErrValidation)
	ErrUserAlreadyExists = fmt.Errorf("%w: user already exists", ErrValidation)
	ErrWeakPassword      = fmt.Errorf("%w: password is too weak", ErrValidation)
	ErrRoleNotFound      = fmt.Errorf("%w: role does not exist", ErrValidation)

	ErrUserNotFound    = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("%w: session not found", ErrNotFound)

	ErrInvalidCredentials   = fmt.Errorf("%w: invalid credentials", ErrAuthentication)
	ErrRefreshTokenNotValid = fmt.Errorf("%w: token not valid", ErrAuthentication)
	ErrAccessTokenInvalid   = fmt.Errorf("%w: access token invalid", ErrAuthentication)

	// Token validator rejections
	ErrTokenNoClaims      = fmt.Errorf("%w: this is not our issued token, it has no claims", ErrAuthentication)
	ErrTokenNoSerial      = fmt.Errorf("%w: this is not our issued token, it has no serial", ErrAuthentication)
	ErrTokenNoUserID      = fmt.Errorf("%w: this is not our issued token, it has no user id", ErrAuthentication)
	ErrSessionStale       = fmt.Errorf("%w: this token is expired, please login again", ErrAuthentication)
	ErrTokenNotRecognized = fmt.Errorf("%w: this token is not in our database", ErrAuthentication)

	ErrRoleRequired = fmt.Errorf("%w: not enough permissions", ErrForbidden)
)
