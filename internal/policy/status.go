package policy

// Status is the outcome of evaluating one domain.
type Status struct {
	ShouldBlock bool  `json:"shouldBlock"`
	Used        int64 `json:"used"`
	Limit       int64 `json:"limit"` // 0 when unlimited
}

// Decide is the native limit comparison.
func Decide(used, limit int64) Status {
	if limit <= 0 {
		return Status{Used: used}
	}
	return Status{
		ShouldBlock: used >= limit,
		Used:        used,
		Limit:       limit,
	}
}

// LevelState classifies how close a domain is to its limit.
type LevelState string

const (
	LevelOK      LevelState = "ok"
	LevelWarning LevelState = "warning"
	LevelDanger  LevelState = "danger"
)

// Level is the progress of a domain against its limit.
type Level struct {
	Percent float64    `json:"percent"`
	State   LevelState `json:"state"`
}

// ComputeLevel returns percent used (capped at 100) and its state.
// Unlimited domains are always ok at 0 %.
func ComputeLevel(s Status) Level {
	if s.Limit <= 0 {
		return Level{State: LevelOK}
	}

	percent := float64(s.Used*100) / float64(s.Limit)
	if percent > 100 {
		percent = 100
	}

	state := LevelOK
	switch {
	case percent > 90:
		state = LevelDanger
	case percent > 75:
		state = LevelWarning
	}
	return Level{Percent: percent, State: state}
}
