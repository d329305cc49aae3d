package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/models"
)

func newProjectVariable(key string, value string, attrs models.VariableAttributes) *models.Variable {
	return models.NewVariable(models.NewTime(time.Now()), models.VariableOwnerProject, 1, key, value, attrs, "")
}

func TestValidateMaskedValue(t *testing.T) {
	t.Run("Expanded", func(t *testing.T) {
		require.NoError(t, models.ValidateMaskedValue("abcd1234", models.MaskingCharsetExpanded))
		require.NoError(t, models.ValidateMaskedValue("dXNlcjpwYXNz@host:8080/~a.b-c", models.MaskingCharsetExpanded))

		err := models.ValidateMaskedValue("short", models.MaskingCharsetExpanded)
		require.Error(t, err)
		require.True(t, gerror.IsValidationFailed(err))
		require.Contains(t, err.Error(), models.ErrMsgMaskedValueTooShort)

		err = models.ValidateMaskedValue("abcd 1234", models.MaskingCharsetExpanded)
		require.Error(t, err)
		require.Contains(t, err.Error(), models.ErrMsgMaskedValueSpaces)

		err = models.ValidateMaskedValue("abcd1234\nmore", models.MaskingCharsetExpanded)
		require.Error(t, err)
		require.Contains(t, err.Error(), models.ErrMsgMaskedValueMultiline)

		err = models.ValidateMaskedValue("abcd1234$!", models.MaskingCharsetExpanded)
		require.Error(t, err)
		require.Contains(t, err.Error(), models.ErrMsgMaskedValueCharacterSet)
	})

	t.Run("Raw", func(t *testing.T) {
		require.NoError(t, models.ValidateMaskedValue("abcd1234$!", models.MaskingCharsetRaw))

		err := models.ValidateMaskedValue("abcd\t1234", models.MaskingCharsetRaw)
		require.Error(t, err)
		require.Contains(t, err.Error(), models.ErrMsgMaskedValueWhitespace)

		err = models.ValidateMaskedValue("$!", models.MaskingCharsetRaw)
		require.Error(t, err)
		require.Contains(t, err.Error(), models.ErrMsgMaskedValueTooShort)
	})

	t.Run("UnknownCharset", func(t *testing.T) {
		err := models.ValidateMaskedValue("abcd1234", models.MaskingCharset("bogus"))
		require.Error(t, err)
		require.True(t, gerror.IsInvalidConfiguration(err))
	})
}

func TestValidateVariableCreate(t *testing.T) {
	t.Run("Visible", func(t *testing.T) {
		v := newProjectVariable("TOKEN", "short", models.VariableAttributes{})
		require.NoError(t, models.ValidateVariableCreate(v))
	})

	t.Run("MaskedShortValue", func(t *testing.T) {
		v := newProjectVariable("TOKEN", "short", models.VariableAttributes{Masked: true})
		err := models.ValidateVariableCreate(v)
		require.Error(t, err)
		require.Contains(t, err.Error(), models.ErrMsgMaskedValueTooShort)
	})

	t.Run("MaskedAndHidden", func(t *testing.T) {
		v := newProjectVariable("TOKEN", "abcd1234", models.VariableAttributes{Masked: true, Hidden: true})
		require.NoError(t, models.ValidateVariableCreate(v))
	})

	t.Run("HiddenWithoutMasked", func(t *testing.T) {
		v := newProjectVariable("TOKEN", "abcd1234", models.VariableAttributes{Hidden: true})
		err := models.ValidateVariableCreate(v)
		require.Error(t, err)
		require.Contains(t, err.Error(), models.ErrMsgHiddenRequiresMasked)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		v := newProjectVariable("NOT-VALID", "value", models.VariableAttributes{})
		require.Error(t, models.ValidateVariableCreate(v))
	})
}

func TestValidateVariableUpdate(t *testing.T) {
	t.Run("VisibleToMasked", func(t *testing.T) {
		existing := newProjectVariable("TOKEN", "abcd1234", models.VariableAttributes{})
		updated := *existing
		updated.Masked = true
		require.NoError(t, models.ValidateVariableUpdate(existing, &updated))
	})

	t.Run("MaskedToVisible", func(t *testing.T) {
		existing := newProjectVariable("TOKEN", "abcd1234", models.VariableAttributes{Masked: true})
		updated := *existing
		updated.Masked = false
		updated.Value = "any value at all"
		require.NoError(t, models.ValidateVariableUpdate(existing, &updated))
	})

	t.Run("MaskedToHidden", func(t *testing.T) {
		existing := newProjectVariable("TOKEN", "abcd1234", models.VariableAttributes{Masked: true})
		updated := *existing
		updated.Hidden = true
		err := models.ValidateVariableUpdate(existing, &updated)
		require.Error(t, err)
		require.Contains(t, err.Error(), models.ErrMsgHiddenUpdateNotAllowed)
	})

	t.Run("HiddenToVisible", func(t *testing.T) {
		existing := newProjectVariable("TOKEN", "abcd1234", models.VariableAttributes{Masked: true, Hidden: true})
		updated := *existing
		updated.Hidden = false
		err := models.ValidateVariableUpdate(existing, &updated)
		require.Error(t, err)
		require.Contains(t, err.Error(), models.ErrMsgHiddenUpdateNotAllowed)
	})

	t.Run("HiddenUnmasked", func(t *testing.T) {
		existing := newProjectVariable("TOKEN", "abcd1234", models.VariableAttributes{Masked: true, Hidden: true})
		updated := *existing
		updated.Masked = false
		err := models.ValidateVariableUpdate(existing, &updated)
		require.Error(t, err)
		require.Contains(t, err.Error(), models.ErrMsgMaskedUpdateNotAllowed)
	})

	t.Run("HiddenValueChange", func(t *testing.T) {
		existing := newProjectVariable("TOKEN", "abcd1234", models.VariableAttributes{Masked: true, Hidden: true})
		updated := *existing
		updated.Value = "efgh5678"
		require.NoError(t, models.ValidateVariableUpdate(existing, &updated))

		updated.Value = "bad"
		require.Error(t, models.ValidateVariableUpdate(existing, &updated))
	})
}

func TestMaskingStateTransitions(t *testing.T) {
	require.NoError(t, models.MaskingStateVisible.CheckUpdateTransition(models.MaskingStateMasked))
	require.NoError(t, models.MaskingStateMasked.CheckUpdateTransition(models.MaskingStateVisible))
	require.NoError(t, models.MaskingStateMaskedAndHidden.CheckUpdateTransition(models.MaskingStateMaskedAndHidden))
	require.Error(t, models.MaskingStateVisible.CheckUpdateTransition(models.MaskingStateMaskedAndHidden))
	require.Error(t, models.MaskingStateMasked.CheckUpdateTransition(models.MaskingStateMaskedAndHidden))
	require.Error(t, models.MaskingStateMaskedAndHidden.CheckUpdateTransition(models.MaskingStateMasked))
	require.Error(t, models.MaskingStateMaskedAndHidden.CheckUpdateTransition(models.MaskingStateVisible))
}
