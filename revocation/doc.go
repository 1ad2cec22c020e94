// Package revocation keeps the server-side session state in Redis: the refresh
// whitelist, the access-token blacklist, password-reset tokens, pending MFA
// login challenges and the TOTP attempt and replay guards.
//
// Key layout, all under a configurable prefix:
//
//	{prefix}:refreshToken:{userID}   sha256 of the current refresh token
//	{prefix}:jwt:revoked:{jti}       "1" until the access token would expire
//	{prefix}:passwordReset:{sha256}  user id, single use
//	{prefix}:mfa:{userID}            failed TOTP attempts in the current window
//	{prefix}:mfaChallenge:{sha256}   {uid, tid} JSON, consumed by GETDEL
//	{prefix}:totpStep:{userID}:{h}   last accepted TOTP step for a secret
package revocation
