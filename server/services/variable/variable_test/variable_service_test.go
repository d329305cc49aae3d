package variable_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/app/server_test"
	"github.com/buildbeaver/jobvars/server/dto"
)

func TestVariableService(t *testing.T) {
	ctx := context.Background()
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.NoError(t, err)
	defer cleanup()

	t.Run("EncryptedAtRest", func(t *testing.T) {
		variable := server_test.CreateVariable(t, ctx, app, models.VariableOwnerProject, server_test.TestProjectID, "API_KEY", "plaintext-api-key")
		require.Equal(t, "plaintext-api-key", variable.Value)

		stored, err := app.VariableStore.Read(ctx, nil, variable.ID)
		require.NoError(t, err)
		require.Empty(t, stored.Value)
		require.NotEmpty(t, stored.ValueEncrypted)
		require.NotEmpty(t, stored.DataKeyEncrypted)
		require.False(t, bytes.Contains(stored.ValueEncrypted, []byte("plaintext-api-key")))

		read, err := app.VariableService.Read(ctx, nil, variable.ID)
		require.NoError(t, err)
		require.Equal(t, "plaintext-api-key", read.Value)
	})

	t.Run("Duplicate", func(t *testing.T) {
		server_test.CreateVariable(t, ctx, app, models.VariableOwnerProject, server_test.TestProjectID, "DUPLICATE", "one")
		_, err := app.VariableService.Create(ctx, nil, &dto.CreateVariable{
			OwnerKind:      models.VariableOwnerProject,
			OwnerID:        server_test.TestProjectID,
			Key:            "DUPLICATE",
			ValuePlaintext: "two",
			Attributes:     models.VariableAttributes{VariableType: models.VariableTypeEnvVar},
		})
		require.Error(t, err)
		require.True(t, gerror.IsAlreadyExists(err))

		server_test.CreateVariableWithScope(t, ctx, app, models.VariableOwnerProject, server_test.TestProjectID,
			"DUPLICATE", "scoped", "production", models.VariableAttributes{})
	})

	t.Run("InvalidCreate", func(t *testing.T) {
		tests := []struct {
			name   string
			create *dto.CreateVariable
		}{
			{"BadKey", &dto.CreateVariable{OwnerKind: models.VariableOwnerProject, OwnerID: 1, Key: "NOT-VALID", ValuePlaintext: "x"}},
			{"MissingOwner", &dto.CreateVariable{OwnerKind: models.VariableOwnerGroup, Key: "KEY", ValuePlaintext: "x"}},
			{"ScopedPipelineVariable", &dto.CreateVariable{OwnerKind: models.VariableOwnerPipeline, OwnerID: 1, Key: "KEY", ValuePlaintext: "x", EnvironmentScope: "production"}},
			{"ProtectedPipelineVariable", &dto.CreateVariable{OwnerKind: models.VariableOwnerPipeline, OwnerID: 1, Key: "KEY", ValuePlaintext: "x", Attributes: models.VariableAttributes{Protected: true}}},
			{"HiddenNotMasked", &dto.CreateVariable{OwnerKind: models.VariableOwnerProject, OwnerID: 1, Key: "KEY", ValuePlaintext: "long-enough-value", Attributes: models.VariableAttributes{Hidden: true}}},
			{"MaskedTooShort", &dto.CreateVariable{OwnerKind: models.VariableOwnerProject, OwnerID: 1, Key: "KEY", ValuePlaintext: "short", Attributes: models.VariableAttributes{Masked: true}}},
			{"MaskedBadCharset", &dto.CreateVariable{OwnerKind: models.VariableOwnerProject, OwnerID: 1, Key: "KEY", ValuePlaintext: "value#with$symbols", Attributes: models.VariableAttributes{Masked: true}}},
			{"MaskedMultiline", &dto.CreateVariable{OwnerKind: models.VariableOwnerProject, OwnerID: 1, Key: "KEY", ValuePlaintext: "line-one\nline-two", Attributes: models.VariableAttributes{Masked: true, Raw: true}}},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				if test.create.Attributes.VariableType == "" {
					test.create.Attributes.VariableType = models.VariableTypeEnvVar
				}
				_, err := app.VariableService.Create(ctx, nil, test.create)
				require.Error(t, err)
				require.True(t, gerror.IsValidationFailed(err))
			})
		}
	})

	t.Run("MaskedRawAllowsSymbols", func(t *testing.T) {
		variable := server_test.CreateVariableWithScope(t, ctx, app, models.VariableOwnerProject, server_test.TestProjectID,
			"RAW_SECRET", "value#with$symbols", models.AllEnvironmentsScope, models.VariableAttributes{Masked: true, Raw: true})
		require.True(t, variable.Masked)
	})

	t.Run("Hidden", func(t *testing.T) {
		variable := server_test.CreateVariableWithScope(t, ctx, app, models.VariableOwnerProject, server_test.TestProjectID,
			"HIDDEN_SECRET", "hidden-secret-value", models.AllEnvironmentsScope, models.VariableAttributes{Masked: true, Hidden: true})
		require.Empty(t, variable.Value, "hidden values are never returned")

		read, err := app.VariableService.Read(ctx, nil, variable.ID)
		require.NoError(t, err)
		require.Empty(t, read.Value)

		list, err := app.VariableService.ListByOwner(ctx, nil, models.VariableOwnerProject, server_test.TestProjectID)
		require.NoError(t, err)
		for _, listed := range list {
			if listed.Key == "HIDDEN_SECRET" {
				require.Empty(t, listed.Value)
			}
		}

		plaintext, err := app.VariableService.ListPlaintextByOwners(ctx, nil, models.VariableOwnerProject, server_test.TestProjectID)
		require.NoError(t, err)
		found := false
		for _, listed := range plaintext {
			if listed.Key == "HIDDEN_SECRET" {
				found = true
				require.Equal(t, "hidden-secret-value", listed.Value)
			}
		}
		require.True(t, found, "hidden values are still available to jobs")

		unhide := false
		_, err = app.VariableService.Update(ctx, nil, variable.ID, &dto.UpdateVariable{Hidden: &unhide})
		require.True(t, gerror.IsValidationFailed(err))

		unmask := false
		_, err = app.VariableService.Update(ctx, nil, variable.ID, &dto.UpdateVariable{Masked: &unmask})
		require.True(t, gerror.IsValidationFailed(err))

		value := "rotated-secret-value"
		updated, err := app.VariableService.Update(ctx, nil, variable.ID, &dto.UpdateVariable{ValuePlaintext: &value})
		require.NoError(t, err)
		require.Empty(t, updated.Value)
		plaintext, err = app.VariableService.ListPlaintextByOwners(ctx, nil, models.VariableOwnerProject, server_test.TestProjectID)
		require.NoError(t, err)
		for _, listed := range plaintext {
			if listed.Key == "HIDDEN_SECRET" {
				require.Equal(t, "rotated-secret-value", listed.Value)
			}
		}
	})

	t.Run("Update", func(t *testing.T) {
		variable := server_test.CreateVariable(t, ctx, app, models.VariableOwnerGroup, server_test.TestRootGroup, "MUTABLE", "visible-value")

		hide := true
		mask := true
		_, err := app.VariableService.Update(ctx, nil, variable.ID, &dto.UpdateVariable{Masked: &mask, Hidden: &hide})
		require.True(t, gerror.IsValidationFailed(err), "variables can only be hidden when created")

		updated, err := app.VariableService.Update(ctx, nil, variable.ID, &dto.UpdateVariable{Masked: &mask})
		require.NoError(t, err)
		require.True(t, updated.Masked)
		require.Equal(t, "visible-value", updated.Value)
		require.NotEqual(t, variable.ETag, updated.ETag)

		unmask := false
		updated, err = app.VariableService.Update(ctx, nil, variable.ID, &dto.UpdateVariable{Masked: &unmask, ETag: updated.ETag})
		require.NoError(t, err)
		require.False(t, updated.Masked)

		short := "short"
		_, err = app.VariableService.Update(ctx, nil, variable.ID, &dto.UpdateVariable{Masked: &mask, ValuePlaintext: &short})
		require.True(t, gerror.IsValidationFailed(err))

		_, err = app.VariableService.Update(ctx, nil, variable.ID, &dto.UpdateVariable{Masked: &mask, ETag: variable.ETag})
		require.True(t, gerror.IsOptimisticLockFailed(err))
	})

	t.Run("ListPlaintextByOwners", func(t *testing.T) {
		server_test.CreateVariable(t, ctx, app, models.VariableOwnerGroup, 501, "ORDERED", "child")
		server_test.CreateVariable(t, ctx, app, models.VariableOwnerGroup, 500, "ORDERED", "root")
		server_test.CreateVariable(t, ctx, app, models.VariableOwnerGroup, 502, "ORDERED", "unrelated")

		list, err := app.VariableService.ListPlaintextByOwners(ctx, nil, models.VariableOwnerGroup, 500, 501)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, "root", list[0].Value)
		require.Equal(t, "child", list[1].Value)

		list, err = app.VariableService.ListPlaintextByOwners(ctx, nil, models.VariableOwnerGroup)
		require.NoError(t, err)
		require.Empty(t, list)
	})

	t.Run("Delete", func(t *testing.T) {
		variable := server_test.CreateVariable(t, ctx, app, models.VariableOwnerInstance, 0, "DOOMED", "value")
		require.NoError(t, app.VariableService.Delete(ctx, nil, variable.ID))
		require.NoError(t, app.VariableService.Delete(ctx, nil, variable.ID))
		_, err := app.VariableService.Read(ctx, nil, variable.ID)
		require.True(t, gerror.IsNotFound(err))
	})
}
