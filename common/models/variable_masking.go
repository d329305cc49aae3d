package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"

	"github.com/buildbeaver/jobvars/common/gerror"
)

const MaskedValueMinLength = 8

// MaskedValueRegex is the character set a masked variable's value must match when the value is
// subject to expansion: the Base64 alphabet (standard and URL-safe) plus @:.~-
var MaskedValueRegex = regexp.MustCompile(`^[a-zA-Z0-9_+=/@:.~-]{8,}$`)

// MaskedRawValueRegex is the looser character set for masked variables that are never expanded.
var MaskedRawValueRegex = regexp.MustCompile(`^\S{8,}$`)

const (
	ErrMsgHiddenRequiresMasked     = "Only masked variables can be hidden"
	ErrMsgHiddenUpdateNotAllowed   = "Updating hidden attribute is not allowed on updates"
	ErrMsgMaskedUpdateNotAllowed   = "Updating masked attribute is not allowed on updates for hidden variables"
	ErrMsgMaskedValueTooShort      = "Value must be at least 8 characters long to be masked"
	ErrMsgMaskedValueMultiline     = "Value must be a single line to be masked"
	ErrMsgMaskedValueSpaces        = "Value cannot contain spaces to be masked"
	ErrMsgMaskedValueWhitespace    = "Value cannot contain whitespace to be masked"
	ErrMsgMaskedValueCharacterSet  = "Value can contain only Base64 alphabet (RFC4648) and @:.~- characters to be masked"
	ErrMsgMaskingCharsetUnknownFmt = "Unknown masking charset: %q"
)

const (
	// MaskingCharsetExpanded is applied to masked variables whose values are expanded.
	MaskingCharsetExpanded MaskingCharset = "expanded"
	// MaskingCharsetRaw is applied to masked variables whose values are used literally.
	MaskingCharsetRaw MaskingCharset = "raw"
)

// MaskingCharset names one of the character-set rules a masked value must satisfy.
type MaskingCharset string

// MaskingCharsetFor returns the charset rule that applies to a masked value with the given raw flag.
func MaskingCharsetFor(raw bool) MaskingCharset {
	if raw {
		return MaskingCharsetRaw
	}
	return MaskingCharsetExpanded
}

const (
	MaskingStateVisible MaskingState = iota
	MaskingStateMasked
	MaskingStateMaskedAndHidden
)

// MaskingState is the masking/hiding state of a variable. Variables may move freely between
// Visible and Masked, but MaskedAndHidden can only be entered at creation and never left.
type MaskingState int

func (s MaskingState) String() string {
	switch s {
	case MaskingStateVisible:
		return "visible"
	case MaskingStateMasked:
		return "masked"
	case MaskingStateMaskedAndHidden:
		return "masked_and_hidden"
	default:
		return "unknown"
	}
}

// MaskingStateOf derives the masking state from a set of attributes.
// Returns a validation error if the attributes are hidden but not masked.
func MaskingStateOf(attributes VariableAttributes) (MaskingState, error) {
	switch {
	case attributes.Hidden && !attributes.Masked:
		return MaskingStateVisible, gerror.NewErrValidationFailed(ErrMsgHiddenRequiresMasked)
	case attributes.Hidden:
		return MaskingStateMaskedAndHidden, nil
	case attributes.Masked:
		return MaskingStateMasked, nil
	default:
		return MaskingStateVisible, nil
	}
}

// CheckUpdateTransition returns an error if an update may not move a variable from state s to next.
func (s MaskingState) CheckUpdateTransition(next MaskingState) error {
	if s == next {
		return nil
	}
	if s == MaskingStateMaskedAndHidden {
		if next == MaskingStateMasked {
			return gerror.NewErrValidationFailed(ErrMsgHiddenUpdateNotAllowed)
		}
		return gerror.NewErrValidationFailed(ErrMsgMaskedUpdateNotAllowed)
	}
	if next == MaskingStateMaskedAndHidden {
		return gerror.NewErrValidationFailed(ErrMsgHiddenUpdateNotAllowed)
	}
	return nil
}

// ValidateMaskedValue checks value against the named masking charset.
func ValidateMaskedValue(value string, charset MaskingCharset) error {
	var result *multierror.Error
	if strings.ContainsAny(value, "\r\n") {
		result = multierror.Append(result, gerror.NewErrValidationFailed(ErrMsgMaskedValueMultiline))
	}
	switch charset {
	case MaskingCharsetExpanded:
		if strings.Contains(value, " ") {
			result = multierror.Append(result, gerror.NewErrValidationFailed(ErrMsgMaskedValueSpaces))
		}
		if utf8.RuneCountInString(value) < MaskedValueMinLength {
			result = multierror.Append(result, gerror.NewErrValidationFailed(ErrMsgMaskedValueTooShort))
		}
		if result == nil && !MaskedValueRegex.MatchString(value) {
			result = multierror.Append(result, gerror.NewErrValidationFailed(ErrMsgMaskedValueCharacterSet))
		}
	case MaskingCharsetRaw:
		if strings.IndexFunc(value, isInlineSpace) >= 0 {
			result = multierror.Append(result, gerror.NewErrValidationFailed(ErrMsgMaskedValueWhitespace))
		}
		if utf8.RuneCountInString(value) < MaskedValueMinLength {
			result = multierror.Append(result, gerror.NewErrValidationFailed(ErrMsgMaskedValueTooShort))
		}
		if result == nil && !MaskedRawValueRegex.MatchString(value) {
			result = multierror.Append(result, gerror.NewErrValidationFailed(ErrMsgMaskedValueWhitespace))
		}
	default:
		return gerror.NewErrInvalidConfiguration(fmt.Sprintf(ErrMsgMaskingCharsetUnknownFmt, charset))
	}
	return result.ErrorOrNil()
}

// ValidateVariableCreate applies the masking and hiding policy to a variable that is about to be created.
func ValidateVariableCreate(variable *Variable) error {
	var result *multierror.Error
	if err := variable.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	state, err := MaskingStateOf(variable.VariableAttributes)
	if err != nil {
		result = multierror.Append(result, err)
	}
	if state != MaskingStateVisible {
		if err := ValidateMaskedValue(variable.Value, MaskingCharsetFor(variable.Raw)); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// ValidateVariableUpdate applies the masking and hiding policy to an update of existing to updated.
// The hidden flag can never change on update, and the masked flag cannot change once a variable is hidden.
func ValidateVariableUpdate(existing *Variable, updated *Variable) error {
	var result *multierror.Error
	if err := updated.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if existing.Hidden != updated.Hidden {
		result = multierror.Append(result, gerror.NewErrValidationFailed(ErrMsgHiddenUpdateNotAllowed))
	} else if existing.Hidden && existing.Masked != updated.Masked {
		result = multierror.Append(result, gerror.NewErrValidationFailed(ErrMsgMaskedUpdateNotAllowed))
	} else {
		from, err := MaskingStateOf(existing.VariableAttributes)
		if err != nil {
			return err
		}
		to, err := MaskingStateOf(updated.VariableAttributes)
		if err != nil {
			result = multierror.Append(result, err)
		} else if err := from.CheckUpdateTransition(to); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if updated.Masked {
		if err := ValidateMaskedValue(updated.Value, MaskingCharsetFor(updated.Raw)); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func isInlineSpace(r rune) bool {
	return unicode.IsSpace(r) && r != '\n' && r != '\r'
}
