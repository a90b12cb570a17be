package change

// Kind tags which mutation a Change performs.
type Kind string

const (
	KindAdd    Kind = "Add"
	KindDelete Kind = "Delete"
	KindSub    Kind = "Sub"
	KindRegex  Kind = "Regex"
)

// Change is the tagged union of mutation kinds. Only the fields relevant
// to Kind are populated; this mirrors the sum type in spec but as a single
// Go struct rather than an interface, since every variant's apply logic
// lives together in apply.go and none of them carry behavior of their own.
type Change struct {
	Kind        Kind
	Path        string // Add only: path to create
	Content     string // Add only: exact bytes to write
	Literal     string // Sub only
	Pattern     string // Regex only
	Replacement string // Sub, Regex
}

// PRMode selects whether/how a pull request is opened after push.
type PRMode string

const (
	PRNone   PRMode = "none"
	PRNormal PRMode = "normal"
	PRDraft  PRMode = "draft"
)

// Spec is the full description of one batch operation, shared across every
// repository it touches.
type Spec struct {
	ID            string
	Change        Change
	FileGlobs     []string
	CommitMessage string // empty means dry-run
	PRMode        PRMode
	Account       string // optional override
}

// IsDryRun reports whether this spec applies and diffs without committing.
func (s Spec) IsDryRun() bool {
	return s.CommitMessage == ""
}
