package domain

// TokenPurpose selects the secret and lifetime a token is signed with.
type TokenPurpose string

const (
	PurposeAccess            TokenPurpose = "access"
	PurposeRefresh           TokenPurpose = "refresh"
	PurposeEmailVerification TokenPurpose = "email-verification"
	PurposePasswordReset     TokenPurpose = "password-reset"
)

// TokenClaims is the payload carried by every bearer token. Tokens are never
// persisted. Purpose is only embedded in password-reset tokens.
type TokenClaims struct {
	AccountID string
	Email     string
	Role      Role
	Purpose   TokenPurpose
}
