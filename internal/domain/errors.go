package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can switch on it without caring about
// where the error was produced.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindInvalidCredentials
	KindTokenExpired
	KindTokenInvalid
	KindTokenMalformed
	KindRateLimited
	KindInvalidOrExpiredCode
	KindIncorrectCode
	KindLocked
	KindAlreadyUsedCode
	KindTokenSigning
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindBadRequest:           "bad_request",
	KindNotFound:             "not_found",
	KindConflict:             "conflict",
	KindUnauthorized:         "unauthorized",
	KindForbidden:            "forbidden",
	KindInvalidCredentials:   "invalid_credentials",
	KindTokenExpired:         "token_expired",
	KindTokenInvalid:         "token_invalid",
	KindTokenMalformed:       "token_malformed",
	KindRateLimited:          "rate_limited",
	KindInvalidOrExpiredCode: "invalid_or_expired_code",
	KindIncorrectCode:        "incorrect_code",
	KindLocked:               "locked",
	KindAlreadyUsedCode:      "already_used_code",
	KindTokenSigning:         "token_signing",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// IsAuthentication reports whether k is one of the token or credential failures.
func (k Kind) IsAuthentication() bool {
	switch k {
	case KindUnauthorized, KindInvalidCredentials, KindTokenExpired, KindTokenInvalid, KindTokenMalformed:
		return true
	}
	return false
}

// Error is the single error type raised by the application layer.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Msg
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Sentinel errors for domain-level error discrimination.
// Services return Errorf values; handlers match on these with errors.Is.
var (
	ErrBadRequest           = &Error{Kind: KindBadRequest}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrInvalidCredentials   = &Error{Kind: KindInvalidCredentials}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired}
	ErrTokenInvalid         = &Error{Kind: KindTokenInvalid}
	ErrTokenMalformed       = &Error{Kind: KindTokenMalformed}
	ErrRateLimited          = &Error{Kind: KindRateLimited}
	ErrInvalidOrExpiredCode = &Error{Kind: KindInvalidOrExpiredCode}
	ErrIncorrectCode        = &Error{Kind: KindIncorrectCode}
	ErrLocked               = &Error{Kind: KindLocked}
	ErrAlreadyUsedCode      = &Error{Kind: KindAlreadyUsedCode}
	ErrTokenSigning         = &Error{Kind: KindTokenSigning}
)

// ErrConditionFailed is returned by stores when a conditional single-record write
// did not apply because the stored state no longer matched.
var ErrConditionFailed = errors.New("condition failed")
