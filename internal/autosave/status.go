package autosave

// Status is the save indicator shown to the user. It never blocks editing.
type Status int

const (
	StatusIdle Status = iota
	StatusScheduled
	StatusSaving
	StatusSaved
	StatusOffline
	StatusError
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusScheduled:
		return "scheduled"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusOffline:
		return "offline"
	case StatusError:
		return "error"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}
