// Package jenkins provides the API client for communicating with a Jenkins
// server.
//
// The client handles authentication (basic auth, session cookies, CSRF
// crumbs) and provides methods for:
//   - Discovering buildable jobs across nested folders
//   - Reading a job's parameter definitions (config.xml with JSON fallback)
//   - Triggering builds and polling queue items / build status
//   - Stopping an in-flight build
package jenkins

// ParamType identifies the kind of a build parameter.
type ParamType string

const (
	ParamString   ParamType = "string"
	ParamText     ParamType = "text"
	ParamChoice   ParamType = "choice"
	ParamBoolean  ParamType = "boolean"
	ParamPassword ParamType = "password"
)

// UnsetPassword is the sentinel default for password parameters. Parameters
// carrying this value are dropped before triggering so the server-side
// default applies.
const UnsetPassword = "<DEFAULT>"

// MaskedPassword is what password values render as in any output.
const MaskedPassword = "*******"

// Job is one buildable entry from the server's job tree. Name is
// folder-qualified (e.g. "team/app") once the tree has been flattened.
type Job struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	URL         string `json:"url"`
	Class       string `json:"_class"`
	Jobs        []Job  `json:"jobs,omitempty"`
}

// JobParameter is one parameter definition of a job. Both the config.xml
// path and the JSON fallback resolve to this shape.
type JobParameter struct {
	Type         ParamType
	Name         string
	Description  string
	DefaultValue string
	Choices      []string
	Trim         bool

	// Extras kept for fidelity; not used for display.
	Required       bool
	CredentialType string
	ProjectName    string
	Filter         string
}

// ParamValue is a chosen value for one parameter, together with the type it
// was entered as. Serialized into the history store.
type ParamValue struct {
	Value string    `toml:"value" json:"value"`
	Type  ParamType `toml:"type" json:"type"`
}

// BuildStatus is a point-in-time snapshot of a job's build state. It is
// recomputed on every poll and never persisted.
type BuildStatus struct {
	Building      bool
	ID            *int64
	LastBuild     *int64
	LastCompleted *int64
	InQueue       bool
}

// Event is a control message consumed by the polling loops.
type Event int

const (
	// StopSpinner pauses the cosmetic progress indicator without
	// interrupting the poll.
	StopSpinner Event = iota
	// ResumeSpinner resumes a paused indicator.
	ResumeSpinner
	// CancelPolling aborts the poll loop with ErrCancelled.
	CancelPolling
)

// Job tree classes. Folder nodes recurse, buildable nodes are emitted,
// auto-build nodes (branch sources schedule their own builds) are skipped.
const folderClass = "com.cloudbees.hudson.plugins.folder.Folder"

var buildableClasses = map[string]bool{
	"hudson.model.FreeStyleProject":                  true,
	"org.jenkinsci.plugins.workflow.job.WorkflowJob": true,
}

var autoBuildClasses = map[string]bool{
	"org.jenkinsci.plugins.workflow.multibranch.WorkflowMultiBranchProject": true,
	"jenkins.branch.OrganizationFolder":                                     true,
}
