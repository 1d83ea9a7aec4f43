package domain

import "time"

// OneTimeCode is an emailed verification code. Only the bcrypt hash of the
// code is stored. Times are stored as unix seconds so expires_at doubles as the
// table's TTL attribute; correctness never relies on that TTL.
type OneTimeCode struct {
	OTPID     string    `json:"id" dynamodbav:"otp_id"`
	AccountID string    `json:"account_id" dynamodbav:"account_id"`
	Email     string    `json:"email" dynamodbav:"email"`
	CodeHash  string    `json:"-" dynamodbav:"code_hash"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"expires_at,unixtime"`
	Used      bool      `json:"used" dynamodbav:"used"`
	Attempts  int       `json:"attempts" dynamodbav:"attempts"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at,unixtime"`
}

// Usable reports whether the code can still be submitted at now.
func (c *OneTimeCode) Usable(now time.Time) bool {
	return !c.Used && c.ExpiresAt.After(now)
}
