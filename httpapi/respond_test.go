package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrEthical07/shopauth"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{shopauth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{shopauth.ErrTokenExpired, http.StatusUnauthorized, "token expired"},
		{shopauth.ErrAccountLocked, http.StatusLocked, "account locked"},
		{shopauth.ErrTenantAccessDenied, http.StatusForbidden, "tenant access denied"},
		{shopauth.ErrIPNotAllowed, http.StatusForbidden, "ip not allowed"},
		{shopauth.ErrMFAAttemptsExceeded, http.StatusTooManyRequests, "mfa attempts exceeded"},
		{shopauth.ErrRateLimited, http.StatusTooManyRequests, "rate limited"},
		{shopauth.ErrEmailAlreadyUsed, http.StatusConflict, "email already used"},
		{shopauth.ErrTwoFactorEnabled, http.StatusConflict, "two-factor already enabled"},
		{shopauth.ErrInvalidMFAChallenge, http.StatusUnauthorized, "invalid mfa challenge"},
		{shopauth.ErrUserNotFound, http.StatusNotFound, "user not found"},
		{shopauth.ErrPasswordPolicy, http.StatusBadRequest, "password policy violation"},
		{fmt.Errorf("%w: dial tcp: refused", shopauth.ErrStoreUnavailable), http.StatusServiceUnavailable, "service unavailable"},
		{errors.New("boom"), http.StatusServiceUnavailable, "service unavailable"},
	}
	for _, tc := range cases {
		status, msg := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.msg, msg, tc.err.Error())
	}
}

func TestStatusForHidesWrappedCause(t *testing.T) {
	err := fmt.Errorf("%w: secret detail", shopauth.ErrPasswordPolicy)
	_, msg := statusFor(err)
	assert.Equal(t, shopauth.ErrPasswordPolicy.Error(), msg)
}
