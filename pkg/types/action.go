package types

import "fmt"

// ActionKind is the JSON discriminator of an Action.
type ActionKind string

const (
	KindPatch      ActionKind = "patch"       // KindPatch applies a unified diff or a whole-file patch envelope.
	KindExec       ActionKind = "exec"        // KindExec runs an allow-listed shell command.
	KindCheck      ActionKind = "check"       // KindCheck runs the project's build/typecheck entry point.
	KindEnvRequest ActionKind = "env_request" // KindEnvRequest collects environment variables into .env.local.
	KindReadFile   ActionKind = "read_file"   // KindReadFile reads a file inside the root.
	KindWriteFile  ActionKind = "write_file"  // KindWriteFile writes a file inside the root.
	KindEditFile   ActionKind = "edit_file"   // KindEditFile replaces an exact substring of a file.
	KindScanRepo   ActionKind = "scan_repo"   // KindScanRepo re-scans the repository.
)

// Action is one typed unit of work in a plan.
//
// The set of implementations is closed: only the types in this package satisfy
// the unexported marker method. Handlers dispatch through Accept, so adding a
// variant means adding a method to ActionVisitor, which breaks every handler
// at compile time until it is taught the new variant.
type Action interface {
	Kind() ActionKind
	// Describe returns the optional human-readable description, or "".
	Describe() string
	Accept(v ActionVisitor) error
	isAction()
}

// ActionVisitor has exactly one method per Action variant.
type ActionVisitor interface {
	VisitPatch(a *PatchAction) error
	VisitExec(a *ExecAction) error
	VisitCheck(a *CheckAction) error
	VisitEnvRequest(a *EnvRequestAction) error
	VisitReadFile(a *ReadFileAction) error
	VisitWriteFile(a *WriteFileAction) error
	VisitEditFile(a *EditFileAction) error
	VisitScanRepo(a *ScanRepoAction) error
}

// PatchAction carries a unified diff or a "*** Begin Patch" envelope.
type PatchAction struct {
	Diff        string `json:"diff"`
	Description string `json:"description,omitempty"`
}

// ExecAction runs cmd through the shell in Cwd (default: the root).
type ExecAction struct {
	Cmd         string `json:"cmd"`
	Cwd         string `json:"cwd,omitempty"`
	Description string `json:"description,omitempty"`
}

// CheckAction runs a build/typecheck under each of Paths (default: the root).
type CheckAction struct {
	Paths       []string `json:"paths,omitempty"`
	Description string   `json:"description,omitempty"`
}

// EnvRequestAction asks for environment variables. Variables is the current
// form; Names, Providers and Scopes are the legacy form and apply only when
// Variables is empty.
type EnvRequestAction struct {
	Variables   []EnvVarRequest `json:"variables,omitempty"`
	Names       []string        `json:"names,omitempty"`
	Providers   []Provider      `json:"providers,omitempty"`
	Scopes      []Scope         `json:"scopes,omitempty"`
	Description string          `json:"description,omitempty"`
}

// ReadFileAction returns the content of Path in the result data.
type ReadFileAction struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// WriteFileAction replaces Path with Content, creating parents.
type WriteFileAction struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
}

// EditFileAction replaces the first occurrence of OldContent with NewContent.
type EditFileAction struct {
	Path        string `json:"path"`
	OldContent  string `json:"oldContent"`
	NewContent  string `json:"newContent"`
	Description string `json:"description,omitempty"`
}

// ScanMode selects how much work the scanner does per file.
type ScanMode string

const (
	ScanFast ScanMode = "fast" // ScanFast records size, mtime and the binary heuristic.
	ScanDeep ScanMode = "deep" // ScanDeep additionally fingerprints content with SHA-1.
)

// ScanRepoAction re-scans Root (default: the sandbox root).
type ScanRepoAction struct {
	Root          string   `json:"root,omitempty"`
	Mode          ScanMode `json:"mode,omitempty"`
	RespectIgnore *bool    `json:"respectIgnore,omitempty"`
	Description   string   `json:"description,omitempty"`
}

// IgnoreEnabled reports whether ignore rules apply; nil means true.
func (a *ScanRepoAction) IgnoreEnabled() bool {
	return a.RespectIgnore == nil || *a.RespectIgnore
}

func (*PatchAction) Kind() ActionKind      { return KindPatch }
func (*ExecAction) Kind() ActionKind       { return KindExec }
func (*CheckAction) Kind() ActionKind      { return KindCheck }
func (*EnvRequestAction) Kind() ActionKind { return KindEnvRequest }
func (*ReadFileAction) Kind() ActionKind   { return KindReadFile }
func (*WriteFileAction) Kind() ActionKind  { return KindWriteFile }
func (*EditFileAction) Kind() ActionKind   { return KindEditFile }
func (*ScanRepoAction) Kind() ActionKind   { return KindScanRepo }

func (a *PatchAction) Describe() string      { return a.Description }
func (a *ExecAction) Describe() string       { return a.Description }
func (a *CheckAction) Describe() string      { return a.Description }
func (a *EnvRequestAction) Describe() string { return a.Description }
func (a *ReadFileAction) Describe() string   { return a.Description }
func (a *WriteFileAction) Describe() string  { return a.Description }
func (a *EditFileAction) Describe() string   { return a.Description }
func (a *ScanRepoAction) Describe() string   { return a.Description }

func (a *PatchAction) Accept(v ActionVisitor) error      { return v.VisitPatch(a) }
func (a *ExecAction) Accept(v ActionVisitor) error       { return v.VisitExec(a) }
func (a *CheckAction) Accept(v ActionVisitor) error      { return v.VisitCheck(a) }
func (a *EnvRequestAction) Accept(v ActionVisitor) error { return v.VisitEnvRequest(a) }
func (a *ReadFileAction) Accept(v ActionVisitor) error   { return v.VisitReadFile(a) }
func (a *WriteFileAction) Accept(v ActionVisitor) error  { return v.VisitWriteFile(a) }
func (a *EditFileAction) Accept(v ActionVisitor) error   { return v.VisitEditFile(a) }
func (a *ScanRepoAction) Accept(v ActionVisitor) error   { return v.VisitScanRepo(a) }

func (*PatchAction) isAction()      {}
func (*ExecAction) isAction()       {}
func (*CheckAction) isAction()      {}
func (*EnvRequestAction) isAction() {}
func (*ReadFileAction) isAction()   {}
func (*WriteFileAction) isAction()  {}
func (*EditFileAction) isAction()   {}
func (*ScanRepoAction) isAction()   {}

// Label renders "kind" or "kind (description)" for logs and error messages.
func Label(a Action) string {
	if d := a.Describe(); d != "" {
		return fmt.Sprintf("%s (%s)", a.Kind(), d)
	}
	return string(a.Kind())
}
