package variables

import (
	"context"
	"sort"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/store"
)

func init() {
	_ = store.MutableRecord(&models.Variable{})
}

type VariableStore struct {
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *VariableStore {
	return &VariableStore{
		table: store.NewTable(db, logFactory, "variables").WithETagColumn("variable_etag"),
	}
}

// Create a new variable.
// Returns gerror.ErrAlreadyExists if a variable with the same owner, key and environment scope already exists.
func (d *VariableStore) Create(ctx context.Context, txOrNil *store.Tx, variable *models.Variable) error {
	return d.table.Create(ctx, txOrNil, variable)
}

// Read an existing variable, looking it up by ID.
// Returns gerror.ErrNotFound if the variable does not exist.
func (d *VariableStore) Read(ctx context.Context, txOrNil *store.Tx, id models.VariableID) (*models.Variable, error) {
	variable := &models.Variable{}
	return variable, d.table.ReadWhere(ctx, txOrNil, variable, goqu.Ex{"variable_id": id})
}

// Update an existing variable with optimistic locking. Overrides all previous values using the supplied model.
// Returns gerror.ErrOptimisticLockFailed if there is an optimistic lock mismatch.
func (d *VariableStore) Update(ctx context.Context, txOrNil *store.Tx, variable *models.Variable) error {
	return d.table.UpdateWhere(ctx, txOrNil, variable, goqu.Ex{"variable_id": variable.ID})
}

// Delete permanently and idempotently deletes a variable.
func (d *VariableStore) Delete(ctx context.Context, txOrNil *store.Tx, id models.VariableID) error {
	return d.table.DeleteWhere(ctx, txOrNil, goqu.Ex{"variable_id": id})
}

// ListByOwner lists all variables belonging to an owner, ordered by creation time then key.
func (d *VariableStore) ListByOwner(ctx context.Context, txOrNil *store.Tx, ownerKind models.VariableOwnerKind, ownerID int64) ([]*models.Variable, error) {
	return d.ListByOwners(ctx, txOrNil, ownerKind, []int64{ownerID})
}

// ListByOwners lists all variables belonging to any of the owners of the given kind, ordered by
// the position of the owner in ownerIDs, then by creation time.
func (d *VariableStore) ListByOwners(ctx context.Context, txOrNil *store.Tx, ownerKind models.VariableOwnerKind, ownerIDs []int64) ([]*models.Variable, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	ds := d.table.Select(&models.Variable{}).
		Where(
			goqu.Ex{"variable_owner_kind": ownerKind},
			goqu.C("variable_owner_id").In(ownerIDs),
		).
		Order(goqu.C("variable_created_at").Asc()).
		OrderAppend(goqu.C("variable_key").Asc())

	var variables []*models.Variable
	err := d.table.ListIn(ctx, txOrNil, &variables, ds)
	if err != nil {
		return nil, err
	}

	position := make(map[int64]int, len(ownerIDs))
	for i, id := range ownerIDs {
		if _, ok := position[id]; !ok {
			position[id] = i
		}
	}
	sort.SliceStable(variables, func(i, j int) bool {
		return position[variables[i].OwnerID] < position[variables[j].OwnerID]
	})
	return variables, nil
}
