package auth

import (
	"fmt"

	"itdesk.org/internal/apperr"
)

var (
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", apperr.ErrUnauthenticated)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthenticated)
	ErrAccountDisabled    = fmt.Errorf("%w: account is deactivated", apperr.ErrUnauthenticated)
	ErrSessionRevoked     = fmt.Errorf("%w: session is no longer active", apperr.ErrUnauthenticated)
	ErrNoPrincipal        = fmt.Errorf("%w: authentication required", apperr.ErrUnauthenticated)
)
