package domain

// TransferTarget is either a URI (blind) or a consultation line (attended).
type TransferTarget struct {
	URI  string     `json:"uri,omitempty"`
	Line LineNumber `json:"line,omitempty"`
}

// ToURI targets a remote party directly.
func ToURI(uri string) TransferTarget {
	return TransferTarget{URI: uri}
}

// ToLine targets the call currently up on a consultation line.
func ToLine(n LineNumber) TransferTarget {
	return TransferTarget{Line: n}
}

// TransferRequest is created per transferCall invocation and never stored.
type TransferRequest struct {
	FromLine LineNumber     `json:"from_line"`
	Target   TransferTarget `json:"target"`
	Attended bool           `json:"attended"`
}

// TransferPhase names the step of a transfer that failed.
type TransferPhase string

const (
	PhaseValidation TransferPhase = "validation"
	PhaseBlind      TransferPhase = "blind"
	PhaseCompletion TransferPhase = "completion"
)
