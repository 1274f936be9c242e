package invoker

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/cuongbtq/replay-tools/internal/replay/domain"
)

// Services the endpoints belong to. Each has its own base URL and token audience.
const (
	ServiceGitHubForJira = "github-for-jira"
	ServiceSecretsStore  = "dss-secrets-store"
)

// MaxReplayEntities is the largest batch the replay endpoint accepts
const MaxReplayEntities = 5000

// Endpoint shapes requests for one remote operation and classifies its responses
type Endpoint interface {
	// Name identifies the operation in logs and notifications
	Name() string
	// Service selects the base URL and credentials
	Service() string
	// Fields lists the input columns forming the item key, in order
	Fields() []string
	// IntegerFields lists fields that must parse as integers
	IntegerFields() []string
	// MaxBatchSize is the largest batch one call accepts; 0 means unlimited
	MaxBatchSize() int
	// Request returns the path and JSON body for a batch. A nil body sends no payload.
	Request(batch []domain.WorkItem) (path string, body any, err error)
	// Classify maps an HTTP status code to an outcome
	Classify(statusCode int) domain.Status
}

func classify(statusCode int, notFound bool) domain.Status {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return domain.StatusSuccess
	case notFound && statusCode == http.StatusNotFound:
		return domain.StatusNotFound
	default:
		return domain.StatusError
	}
}

func ints(batch []domain.WorkItem, field int) ([]int64, error) {
	out := make([]int64, 0, len(batch))
	for _, item := range batch {
		n, err := strconv.ParseInt(item.Value(field), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", item, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func strs(batch []domain.WorkItem, field int) []string {
	out := make([]string, 0, len(batch))
	for _, item := range batch {
		out = append(out, item.Value(field))
	}
	return out
}

// Resync starts backfills for installations via POST /api/resync
type Resync struct {
	SyncType    string
	StatusTypes []string
	TargetTasks []string
}

// Default resync parameters
var (
	DefaultSyncType    = "full"
	DefaultStatusTypes = []string{"FAILED", "PENDING", "ACTIVE", "COMPLETE"}
	DefaultTargetTasks = []string{"pull"}
)

// NewResync creates a Resync endpoint, filling empty parameters with defaults
func NewResync(syncType string, statusTypes, targetTasks []string) *Resync {
	if syncType == "" {
		syncType = DefaultSyncType
	}
	if len(statusTypes) == 0 {
		statusTypes = slices.Clone(DefaultStatusTypes)
	}
	if len(targetTasks) == 0 {
		targetTasks = slices.Clone(DefaultTargetTasks)
	}
	return &Resync{SyncType: syncType, StatusTypes: statusTypes, TargetTasks: targetTasks}
}

type resyncRequest struct {
	InstallationIDs []int64  `json:"installationIds"`
	SyncType        string   `json:"syncType"`
	StatusTypes     []string `json:"statusTypes"`
	TargetTasks     []string `json:"targetTasks"`
}

func (e *Resync) Name() string            { return "resync" }
func (e *Resync) Service() string         { return ServiceGitHubForJira }
func (e *Resync) Fields() []string        { return []string{"installation_id"} }
func (e *Resync) IntegerFields() []string { return []string{"installation_id"} }
func (e *Resync) MaxBatchSize() int       { return 0 }

func (e *Resync) Request(batch []domain.WorkItem) (string, any, error) {
	ids, err := ints(batch, 0)
	if err != nil {
		return "", nil, err
	}
	return "/api/resync", resyncRequest{
		InstallationIDs: ids,
		SyncType:        e.SyncType,
		StatusTypes:     e.StatusTypes,
		TargetTasks:     e.TargetTasks,
	}, nil
}

func (e *Resync) Classify(statusCode int) domain.Status {
	return classify(statusCode, false)
}

// Configuration syncs the configured state of Jira hosts via POST /api/configuration
type Configuration struct{}

type configurationRequest struct {
	JiraHosts []string `json:"jiraHosts"`
}

func (Configuration) Name() string            { return "configuration" }
func (Configuration) Service() string         { return ServiceGitHubForJira }
func (Configuration) Fields() []string        { return []string{"jiraHost"} }
func (Configuration) IntegerFields() []string { return nil }
func (Configuration) MaxBatchSize() int       { return 0 }

func (Configuration) Request(batch []domain.WorkItem) (string, any, error) {
	return "/api/configuration", configurationRequest{JiraHosts: strs(batch, 0)}, nil
}

func (Configuration) Classify(statusCode int) domain.Status {
	return classify(statusCode, false)
}

// Failed task types accepted by /api/resync-failed-tasks
const (
	TaskDependabotAlert     = "dependabotAlert"
	TaskSecretScanningAlert = "secretScanningAlert"
	TaskCodeScanningAlert   = "codeScanningAlert"
)

// FailedTasks lists the valid --task values
var FailedTasks = []string{TaskDependabotAlert, TaskSecretScanningAlert, TaskCodeScanningAlert}

// ResyncFailedTasks re-runs one failed backfill task for subscriptions via
// POST /api/resync-failed-tasks
type ResyncFailedTasks struct {
	Task string
}

// NewResyncFailedTasks creates the endpoint, rejecting unknown tasks
func NewResyncFailedTasks(task string) (*ResyncFailedTasks, error) {
	if !slices.Contains(FailedTasks, task) {
		return nil, domain.NewConfigError("task", "must be one of %v, got %q", FailedTasks, task)
	}
	return &ResyncFailedTasks{Task: task}, nil
}

type resyncFailedTasksRequest struct {
	SubscriptionIDs []int64  `json:"subscriptionsIds"`
	TargetTasks     []string `json:"targetTasks"`
}

func (e *ResyncFailedTasks) Name() string            { return "resync-failed-tasks" }
func (e *ResyncFailedTasks) Service() string         { return ServiceGitHubForJira }
func (e *ResyncFailedTasks) Fields() []string        { return []string{"subscriptionId"} }
func (e *ResyncFailedTasks) IntegerFields() []string { return []string{"subscriptionId"} }
func (e *ResyncFailedTasks) MaxBatchSize() int       { return 0 }

func (e *ResyncFailedTasks) Request(batch []domain.WorkItem) (string, any, error) {
	ids, err := ints(batch, 0)
	if err != nil {
		return "", nil, err
	}
	return "/api/resync-failed-tasks", resyncFailedTasksRequest{
		SubscriptionIDs: ids,
		TargetTasks:     []string{e.Task},
	}, nil
}

func (e *ResyncFailedTasks) Classify(statusCode int) domain.Status {
	return classify(statusCode, false)
}

// ReplayRejected re-submits entities rejected by the data depot via
// POST /api/replay-rejected-entities-from-data-depot
type ReplayRejected struct{}

// ReplayEntity is one entity in a replay request
type ReplayEntity struct {
	GitHubInstallationID int64  `json:"gitHubInstallationId"`
	Identifier           string `json:"identifier"`
	HashedJiraHost       string `json:"hashedJiraHost"`
}

// ReplayRequest is the replay endpoint's request body
type ReplayRequest struct {
	ReplayEntities []ReplayEntity `json:"replayEntities"`
}

func (ReplayRejected) Name() string    { return "replay-rejected" }
func (ReplayRejected) Service() string { return ServiceGitHubForJira }
func (ReplayRejected) Fields() []string {
	return []string{"gitHubInstallationId", "identifier", "hashedJiraHost"}
}
func (ReplayRejected) IntegerFields() []string { return []string{"gitHubInstallationId"} }
func (ReplayRejected) MaxBatchSize() int       { return MaxReplayEntities }

func (ReplayRejected) Request(batch []domain.WorkItem) (string, any, error) {
	ids, err := ints(batch, 0)
	if err != nil {
		return "", nil, err
	}
	entities := make([]ReplayEntity, len(batch))
	for i, item := range batch {
		entities[i] = ReplayEntity{
			GitHubInstallationID: ids[i],
			Identifier:           item.Value(1),
			HashedJiraHost:       item.Value(2),
		}
	}
	return "/api/replay-rejected-entities-from-data-depot", ReplayRequest{ReplayEntities: entities}, nil
}

func (ReplayRejected) Classify(statusCode int) domain.Status {
	return classify(statusCode, false)
}

// RotateSecrets rotates the stored secrets of one Bitbucket installation. The target is
// carried in the path, so every call handles a single item.
type RotateSecrets struct{}

func (RotateSecrets) Name() string            { return "rotate-secrets" }
func (RotateSecrets) Service() string         { return ServiceSecretsStore }
func (RotateSecrets) Fields() []string        { return []string{"cloud_id", "workspace_uuid"} }
func (RotateSecrets) IntegerFields() []string { return nil }
func (RotateSecrets) MaxBatchSize() int       { return 1 }

func (RotateSecrets) Request(batch []domain.WorkItem) (string, any, error) {
	if len(batch) != 1 {
		return "", nil, fmt.Errorf("rotate-secrets handles one installation per call, got %d", len(batch))
	}
	item := batch[0]
	path := fmt.Sprintf("/api/internal/installations/rotate/cloudid/%s/bitbucket/workspaceuuid/%s",
		url.PathEscape(item.Value(0)), url.PathEscape(item.Value(1)))
	return path, nil, nil
}

func (RotateSecrets) Classify(statusCode int) domain.Status {
	return classify(statusCode, true)
}
