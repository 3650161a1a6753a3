package session

// Event is an inbound signal processed by the coordinator.
type Event interface {
	Type() string
}

// IdleState is reported by the browser's idle detector.
type IdleState string

const (
	IdleActive IdleState = "active"
	IdleIdle   IdleState = "idle"
	IdleLocked IdleState = "locked"
)

// MessageCheckLimits is sent by a page when it loads.
const MessageCheckLimits = "CHECK_LIMITS"

// AlarmDailyReset is the name of the recurring reset alarm.
const AlarmDailyReset = "dailyReset"

// TabActivated fires when the focused tab changes.
type TabActivated struct {
	TabID int
}

// TabUpdated fires when a tab's URL or load status changes. URL is set only
// when the URL itself changed; Tab carries the tab's state after the change.
type TabUpdated struct {
	TabID  int
	Status string
	URL    string
	Tab    Tab
}

// TabRemoved fires when a tab is closed.
type TabRemoved struct {
	TabID int
}

// IdleStateChanged fires when the user goes idle, locks the screen or returns.
type IdleStateChanged struct {
	State IdleState
}

// Message is a runtime message from a page. Sender is nil when the message
// did not come from a tab.
type Message struct {
	MessageType string
	Sender      *Tab
}

// AlarmFired fires when a named alarm goes off.
type AlarmFired struct {
	Name string
}

// CloseRequested closes the observed session, if any.
type CloseRequested struct{}

// ResetRequested runs the daily reset outside the alarm, e.g. from the API.
type ResetRequested struct {
	Trigger string
}

func (TabActivated) Type() string     { return "tab-activated" }
func (TabUpdated) Type() string       { return "tab-updated" }
func (TabRemoved) Type() string       { return "tab-removed" }
func (IdleStateChanged) Type() string { return "idle-state-changed" }
func (Message) Type() string          { return "message" }
func (AlarmFired) Type() string       { return "alarm-fired" }
func (CloseRequested) Type() string   { return "close-requested" }
func (ResetRequested) Type() string   { return "reset-requested" }
