package sandbox

// ResyncRequest is the body of POST /api/resync
type ResyncRequest struct {
	InstallationIDs []int64  `json:"installationIds" binding:"required,min=1"`
	SyncType        string   `json:"syncType" binding:"required"`
	StatusTypes     []string `json:"statusTypes" binding:"required,min=1,dive,oneof=FAILED PENDING ACTIVE COMPLETE"`
	TargetTasks     []string `json:"targetTasks"`
}

// ConfigurationRequest is the body of POST /api/configuration
type ConfigurationRequest struct {
	JiraHosts []string `json:"jiraHosts" binding:"required,min=1,dive,required"`
}

// ResyncFailedTasksRequest is the body of POST /api/resync-failed-tasks
type ResyncFailedTasksRequest struct {
	SubscriptionIDs []int64  `json:"subscriptionsIds" binding:"required,min=1"`
	TargetTasks     []string `json:"targetTasks" binding:"required,len=1,dive,oneof=dependabotAlert secretScanningAlert codeScanningAlert"`
}

// ReplayEntity is one entity of a replay request
type ReplayEntity struct {
	GitHubInstallationID int64  `json:"gitHubInstallationId" binding:"required"`
	Identifier           string `json:"identifier" binding:"required"`
	HashedJiraHost       string `json:"hashedJiraHost" binding:"required"`
}

// ReplayRequest is the body of POST /api/replay-rejected-entities-from-data-depot
type ReplayRequest struct {
	ReplayEntities []ReplayEntity `json:"replayEntities" binding:"required,min=1,max=5000,dive"`
}

// AcceptedResponse acknowledges a batch
type AcceptedResponse struct {
	Accepted int `json:"accepted"`
}

// ErrorResponse carries a rejection reason
type ErrorResponse struct {
	Error string `json:"error"`
}
