package serrors

import "errors"

// BaseError is a coded error. Two BaseErrors match under errors.Is when their codes are equal,
// so sentinels survive wrapping with fmt.Errorf("%w") and go-faster/errors.
type BaseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	LocaleKey string `json:"locale_key,omitempty"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return e.Message
}

func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Code returns the code of the first BaseError in err's chain, or "" when there is none.
func Code(err error) string {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
