// Package config resolves the connection settings of a conditions or
// hardware table.
//
// Settings come from an optional YAML file and are overridden by the DBI*
// environment variables. Resolution also applies the grid rules: when
// _CONDOR_SCRATCH_DIR is set the job is assumed to run on a batch worker,
// which raises the default timeout, prefers the grid password file and
// selects the external web service URLs.
package config
