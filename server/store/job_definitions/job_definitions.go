package job_definitions

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/store"
)

type JobDefinitionStore struct {
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *JobDefinitionStore {
	return &JobDefinitionStore{
		table: store.NewTable(db, logFactory, "job_definitions"),
	}
}

// FindOrCreate returns the definition with the same project and checksum as definition, creating
// it if it does not exist. Returns true iff the definition was created.
func (d *JobDefinitionStore) FindOrCreate(ctx context.Context, txOrNil *store.Tx, definition *models.JobDefinition) (*models.JobDefinition, bool, error) {
	record, created, err := d.table.FindOrCreate(ctx, txOrNil,
		func(ctx context.Context, txOrNil *store.Tx) (store.Record, error) {
			return d.Read(ctx, txOrNil, definition.ProjectID, definition.Checksum)
		},
		func(ctx context.Context, txOrNil *store.Tx) (store.Record, error) {
			return definition, d.table.Create(ctx, txOrNil, definition)
		})
	if err != nil {
		return nil, false, err
	}
	return record.(*models.JobDefinition), created, nil
}

// Read an existing definition, looking it up by project and checksum.
// Returns gerror.ErrNotFound if the definition does not exist.
func (d *JobDefinitionStore) Read(ctx context.Context, txOrNil *store.Tx, projectID int64, checksum string) (*models.JobDefinition, error) {
	definition := &models.JobDefinition{}
	err := d.table.ReadWhere(ctx, txOrNil, definition,
		goqu.Ex{"job_definition_project_id": projectID},
		goqu.Ex{"job_definition_checksum": checksum},
	)
	if err != nil {
		return nil, err
	}
	return definition, nil
}
