package gerror

import (
	"errors"
	"fmt"
	"strings"
)

const (
	AudienceInternal Audience = "internal"
	AudienceExternal Audience = "external"
)

// Audience says who may see an error message or detail. Internal text only ever reaches logs.
type Audience string

type Code string

type DetailKey string

// Error is a coded error with a message for its audience, optional key/value details and an
// optional inner error. Error values are immutable; the builder methods return copies.
type Error struct {
	inner    error
	message  string
	details  []Detail
	audience Audience
	code     Code
}

func NewError(message string, audience Audience, code Code, inner error) Error {
	return Error{
		inner:    inner,
		message:  message,
		audience: audience,
		code:     code,
	}
}

// Error returns the full error chain, details included, for logs.
func (e Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.message)
	for i, detail := range e.details {
		if i == 0 {
			sb.WriteString(" [")
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", detail.key, detail.value)
	}
	if len(e.details) > 0 {
		sb.WriteString("]")
	}
	if e.inner != nil {
		fmt.Fprintf(&sb, ": %v", e.inner)
	}
	return sb.String()
}

func (e Error) Unwrap() error {
	return e.inner
}

// Message returns the message without details or the inner error.
func (e Error) Message() string {
	return e.message
}

func (e Error) Audience() Audience {
	return e.audience
}

func (e Error) Code() Code {
	return e.code
}

// Details returns the details attached to the error in the order they were added.
func (e Error) Details() []Detail {
	return append([]Detail(nil), e.details...)
}

// Detail returns the value of the detail with the given key.
func (e Error) Detail(key DetailKey) (interface{}, bool) {
	for _, detail := range e.details {
		if detail.key == key {
			return detail.value, true
		}
	}
	return nil, false
}

// Wrap returns a copy of the error with the inner error set to inner.
func (e Error) Wrap(inner error) Error {
	e.details = e.Details()
	e.inner = inner
	return e
}

// IDetail returns a copy of the error with an internal detail added, replacing any existing
// detail with the same key.
func (e Error) IDetail(key DetailKey, value interface{}) Error {
	return e.withDetail(Detail{audience: AudienceInternal, key: key, value: value})
}

// EDetail returns a copy of the error with an external detail added, replacing any existing
// detail with the same key.
func (e Error) EDetail(key DetailKey, value interface{}) Error {
	return e.withDetail(Detail{audience: AudienceExternal, key: key, value: value})
}

func (e Error) withDetail(detail Detail) Error {
	details := make([]Detail, 0, len(e.details)+1)
	for _, existing := range e.details {
		if existing.key != detail.key {
			details = append(details, existing)
		}
	}
	e.details = append(details, detail)
	return e
}

// UserMessage returns the text of err that may be shown outside the server: the message and
// external details of the outermost external Error. Anything else reads as an internal error.
func UserMessage(err error) string {
	var gErr Error
	if !errors.As(err, &gErr) || gErr.audience != AudienceExternal {
		return NewErrInternal().Message()
	}
	var external []string
	for _, detail := range gErr.details {
		if detail.audience == AudienceExternal {
			external = append(external, fmt.Sprintf("%s=%v", detail.key, detail.value))
		}
	}
	if len(external) == 0 {
		return gErr.message
	}
	return fmt.Sprintf("%s [%s]", gErr.message, strings.Join(external, ", "))
}

type Detail struct {
	audience Audience
	key      DetailKey
	value    interface{}
}

func (d Detail) Audience() Audience {
	return d.audience
}

func (d Detail) Key() DetailKey {
	return d.key
}

func (d Detail) Value() interface{} {
	return d.value
}
