package domain

// Session is the result of a successful authentication: a token pair and the
// account it was minted for. RefreshToken is empty when only the access token
// was reissued.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	Account      *Account `json:"user,omitempty"`
}
