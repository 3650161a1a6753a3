package session

import (
	"context"
	"time"

	"github.com/goodtune/kfocus/internal/policy"
)

// Session is the interval during which one domain is observed in one tab.
type Session struct {
	ID        string    `json:"id"`
	TabID     int       `json:"tabId"`
	Domain    string    `json:"domain"`
	StartedAt time.Time `json:"startedAt"`
}

// Tab is the last known state of a browser tab.
type Tab struct {
	ID     int    `json:"tabId"`
	URL    string `json:"url,omitempty"`
	Active bool   `json:"active,omitempty"`
}

// DirectiveBlockPage asks the page overlay to render the block screen.
const DirectiveBlockPage = "BLOCK_PAGE"

// Directive is a command delivered to a tab's page context.
type Directive struct {
	Type string `json:"type"`
}

// Badge is the indicator shown on the extension action for a tab. An empty
// Text clears it.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

// BlockedBadge is shown on tabs whose domain has reached its limit.
var BlockedBadge = Badge{Text: "⛔", Color: "#EF4444"}

// Browser is the coordinator's view of the browser.
type Browser interface {
	Tab(ctx context.Context, tabID int) (Tab, error)
	ActiveTab(ctx context.Context) (Tab, error)
	SendDirective(ctx context.Context, tabID int, d Directive) error
	SetBadge(ctx context.Context, tabID int, b Badge) error
}

// Evaluator decides whether a domain is over its limit.
type Evaluator interface {
	Evaluate(ctx context.Context, domain string) (policy.Status, error)
}

// Recorder persists the time of a closed session and returns the seconds
// that were counted.
type Recorder interface {
	Record(ctx context.Context, domain string, startedAt, endedAt time.Time) (int64, error)
}

// Resetter performs the daily reset.
type Resetter interface {
	Reset(ctx context.Context, trigger string) error
}
