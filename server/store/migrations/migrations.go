package migrations

import (
	"fmt"

	"github.com/buildbeaver/jobvars/server/store"
)

// DialectTemplate is used as the templating control for differing SQL syntax between our supported databases
type DialectTemplate struct {
	Binary            string
	IntegerPrimaryKey string
	BigInt            string
}

func NewPostgresDialectTemplate() *DialectTemplate {
	return &DialectTemplate{
		Binary:            "BYTEA",
		IntegerPrimaryKey: "SERIAL PRIMARY KEY",
		BigInt:            "BIGINT",
	}
}

func NewSqliteDialectTemplate() *DialectTemplate {
	return &DialectTemplate{
		Binary:            "BLOB",
		IntegerPrimaryKey: "integer NOT NULL PRIMARY KEY AUTOINCREMENT",
		BigInt:            "integer",
	}
}

func GetDialectForDriver(driver store.DBDriver) (*DialectTemplate, error) {
	switch driver {
	case store.Sqlite:
		return NewSqliteDialectTemplate(), nil
	case store.Postgres:
		return NewPostgresDialectTemplate(), nil
	}
	return nil, fmt.Errorf("error unsupported database driver: %s", driver)
}

// MigrationSet provides a set of migrations that can be applied to a database.
type MigrationSet []MigrationData

// MigrationData provides the data for a single migration, including Up and Down SQL.
// Templated values are substituted for database-specific values before the migrations are applied.
type MigrationData struct {
	SequenceNumber int64
	Name           string
	UpSQL          string
	DownSQL        string
}

// JobVarsMigrations is the set of migrations to set up the database for the job variables engine.
var JobVarsMigrations = MigrationSet{
	{
		SequenceNumber: 1,
		Name:           "create_variables",
		UpSQL: `CREATE TABLE IF NOT EXISTS variables
				(
					variable_id text NOT NULL PRIMARY KEY,
					variable_created_at timestamp without time zone NOT NULL,
					variable_updated_at timestamp without time zone NOT NULL,
					variable_etag text NOT NULL,
					variable_owner_kind text NOT NULL,
					variable_owner_id {{ .BigInt}} NOT NULL,
					variable_key text NOT NULL,
					variable_type text NOT NULL,
					variable_protected bool NOT NULL,
					variable_masked bool NOT NULL,
					variable_hidden bool NOT NULL,
					variable_raw bool NOT NULL,
					variable_environment_scope text NOT NULL,
					variable_description text NOT NULL,
					variable_value_encrypted text,
					variable_data_key_encrypted text
				);
				CREATE UNIQUE INDEX IF NOT EXISTS variables_owner_key_scope_unique_index ON variables(
					variable_owner_kind,
					variable_owner_id,
					variable_key,
					variable_environment_scope);`,
		DownSQL: `DROP INDEX variables_owner_key_scope_unique_index;
				  DROP TABLE variables;`,
	},
	{
		SequenceNumber: 2,
		Name:           "create_job_definitions",
		UpSQL: `CREATE TABLE IF NOT EXISTS job_definitions
				(
					job_definition_project_id {{ .BigInt}} NOT NULL,
					job_definition_checksum text NOT NULL,
					job_definition_created_at timestamp without time zone NOT NULL,
					job_definition_config text NOT NULL,
					PRIMARY KEY (job_definition_project_id, job_definition_checksum)
				);`,
		DownSQL: `DROP TABLE job_definitions;`,
	},
	{
		SequenceNumber: 3,
		Name:           "create_jobs",
		UpSQL: `CREATE TABLE IF NOT EXISTS jobs
				(
					job_id {{ .BigInt}} NOT NULL PRIMARY KEY,
					job_created_at timestamp without time zone NOT NULL,
					job_name text NOT NULL,
					job_stage text NOT NULL,
					job_project_id {{ .BigInt}} NOT NULL,
					job_pipeline_id {{ .BigInt}} NOT NULL,
					job_ref text NOT NULL,
					job_tag bool NOT NULL,
					job_status text NOT NULL,
					job_environment text NOT NULL,
					job_user_id {{ .BigInt}} NOT NULL,
					job_runner_id {{ .BigInt}} NOT NULL,
					job_parallel_total integer NOT NULL,
					job_node_index integer NOT NULL,
					job_definition_checksum text NOT NULL,
					job_dependency_job_ids text
				);
				CREATE INDEX IF NOT EXISTS jobs_pipeline_id_index ON jobs(job_pipeline_id);`,
		DownSQL: `DROP INDEX jobs_pipeline_id_index;
				  DROP TABLE jobs;`,
	},
	{
		SequenceNumber: 4,
		Name:           "create_job_metadata",
		UpSQL: `CREATE TABLE IF NOT EXISTS job_metadata
				(
					job_metadata_job_id {{ .BigInt}} NOT NULL PRIMARY KEY REFERENCES jobs (job_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					job_metadata_project_id {{ .BigInt}} NOT NULL,
					job_metadata_config_options text,
					job_metadata_config_variables text,
					job_metadata_interruptible bool NOT NULL,
					job_metadata_id_tokens text
				);`,
		DownSQL: `DROP TABLE job_metadata;`,
	},
	{
		SequenceNumber: 5,
		Name:           "create_environment_bindings",
		UpSQL: `CREATE TABLE IF NOT EXISTS environment_bindings
				(
					environment_binding_job_id {{ .BigInt}} NOT NULL PRIMARY KEY,
					environment_binding_project_id {{ .BigInt}} NOT NULL,
					environment_binding_created_at timestamp without time zone NOT NULL,
					environment_binding_environment_name text NOT NULL,
					environment_binding_expanded_environment_name text NOT NULL,
					environment_binding_options text NOT NULL
				);`,
		DownSQL: `DROP TABLE environment_bindings;`,
	},
	{
		SequenceNumber: 6,
		Name:           "create_dotenv_variables",
		UpSQL: `CREATE TABLE IF NOT EXISTS dotenv_variables
				(
					dotenv_variable_id {{ .IntegerPrimaryKey}},
					dotenv_variable_job_id {{ .BigInt}} NOT NULL REFERENCES jobs (job_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					dotenv_variable_key text NOT NULL,
					dotenv_variable_value text NOT NULL
				);
				CREATE INDEX IF NOT EXISTS dotenv_variables_job_id_index ON dotenv_variables(dotenv_variable_job_id);`,
		DownSQL: `DROP INDEX dotenv_variables_job_id_index;
				  DROP TABLE dotenv_variables;`,
	},
}
