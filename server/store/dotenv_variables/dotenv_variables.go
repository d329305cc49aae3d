package dotenv_variables

import (
	"context"
	"sort"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/store"
)

type DotenvVariableStore struct {
	db    *store.DB
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *DotenvVariableStore {
	return &DotenvVariableStore{
		db:    db,
		table: store.NewTable(db, logFactory, "dotenv_variables"),
	}
}

// CreateAll stores the dotenv variables exported by a job, in order.
func (d *DotenvVariableStore) CreateAll(ctx context.Context, txOrNil *store.Tx, variables []*models.DotenvVariable) error {
	return d.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		for _, variable := range variables {
			err := d.table.Create(ctx, tx, variable)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByJobs lists the dotenv variables exported by the given jobs, ordered by the position of the
// job in jobIDs then by the order in which each job exported them.
func (d *DotenvVariableStore) ListByJobs(ctx context.Context, txOrNil *store.Tx, jobIDs []int64) ([]*models.DotenvVariable, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	ds := d.table.Select(&models.DotenvVariable{}).
		Where(goqu.C("dotenv_variable_job_id").In(jobIDs)).
		Order(goqu.C("dotenv_variable_id").Asc())

	var variables []*models.DotenvVariable
	err := d.table.ListIn(ctx, txOrNil, &variables, ds)
	if err != nil {
		return nil, err
	}
	position := make(map[int64]int, len(jobIDs))
	for i, id := range jobIDs {
		if _, ok := position[id]; !ok {
			position[id] = i
		}
	}
	sort.SliceStable(variables, func(i, j int) bool {
		return position[variables[i].JobID] < position[variables[j].JobID]
	})
	return variables, nil
}
