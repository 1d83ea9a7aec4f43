package dynamo

// DynamoDB attribute names used in keys, conditions and update expressions.
const (
	fieldAccountID    = "account_id"
	fieldEmail        = "email"
	fieldName         = "name"
	fieldRole         = "role"
	fieldPasswordHash = "password_hash"
	fieldVerified     = "verified"
	fieldUpdatedAt    = "updated_at"
	fieldOTPSentAt    = "otp_sent_at"

	fieldOTPID     = "otp_id"
	fieldUsed      = "used"
	fieldAttempts  = "attempts"
	fieldExpiresAt = "expires_at"
	fieldCreatedAt = "created_at"
)

// GSI names.
const (
	indexOTPAccountCreatedAt = "account_id-created_at-index"
	indexOTPEmailCreatedAt   = "email-created_at-index"
)
