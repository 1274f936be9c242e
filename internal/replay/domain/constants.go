package domain

// Status is the classified outcome of one remote call
type Status string

// Outcome statuses, as written to the status column of the checkpoint file
const (
	StatusSuccess  Status = "success"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Environments the remote services are deployed to
const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

// Environments lists every valid --env value
var Environments = []string{EnvDev, EnvStaging, EnvProd}

// StatusColumn is the trailing column name of checkpoint rows
const StatusColumn = "status"

// Halted reports whether the status stops a run under the default policy
func (s Status) Halted() bool {
	return s == StatusError
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusNotFound, StatusError:
		return true
	}
	return false
}
