package model

// DiagLevel classifies a pipeline diagnostic.
type DiagLevel string

const (
	DiagWarn  DiagLevel = "warn"
	DiagError DiagLevel = "error"
)

// Diagnostic is a structured warning or error produced by a stage. It
// carries enough context to identify the offending input.
type Diagnostic struct {
	Level      DiagLevel
	Stage      string
	Branch     string
	Day        int // -1 when not day-scoped
	Supervisor string
	Partner    string
	Asset      string
	Message    string
}

// HasErrors reports whether any diagnostic is error-level.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Level == DiagError {
			return true
		}
	}
	return false
}
