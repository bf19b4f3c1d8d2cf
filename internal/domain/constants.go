package domain

// Stage constants
const (
	StageQueued       Stage = "QUEUED"
	StageRetrieving   Stage = "RETRIEVING"
	StageTransforming Stage = "TRANSFORMING"
	StageDelivering   Stage = "DELIVERING"
	StageDone         Stage = "DONE"
	StageFailed       Stage = "FAILED"
)

// Media kind constants
const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Stage is the position of a job in the pipeline
type Stage string

// IsTerminal reports whether no further stage can follow
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Kind selects the transform and delivery flavour of a job
type Kind string

// Valid reports whether k is a supported media kind
func (k Kind) Valid() bool {
	return k == KindAudio || k == KindVideo
}
