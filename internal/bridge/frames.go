package bridge

import (
	"fmt"

	"github.com/goodtune/kfocus/internal/session"
)

// Inbound frame types sent by the browser shim.
const (
	FrameTabActivated     = "tab-activated"
	FrameTabUpdated       = "tab-updated"
	FrameTabRemoved       = "tab-removed"
	FrameIdleStateChanged = "idle-state-changed"
	FrameMessage          = "message"
	FrameAlarmFired       = "alarm-fired"
	FrameTabs             = "tabs" // registry snapshot, sent on connect
)

// Outbound frame types sent to the browser shim.
const (
	FrameHello         = "hello"
	FramePageDirective = "page-directive"
	FrameBadge         = "badge"
)

type changeInfo struct {
	Status string `json:"status,omitempty"`
	URL    string `json:"url,omitempty"`
}

type runtimeMessage struct {
	Type string `json:"type"`
}

type messageSender struct {
	TabID *int   `json:"tabId,omitempty"`
	URL   string `json:"url,omitempty"`
}

// inboundFrame is the union of every frame the shim sends; Type selects
// which fields are meaningful.
type inboundFrame struct {
	Type       string          `json:"type"`
	TabID      int             `json:"tabId,omitempty"`
	URL        string          `json:"url,omitempty"`
	ChangeInfo *changeInfo     `json:"changeInfo,omitempty"`
	Tab        *session.Tab    `json:"tab,omitempty"`
	State      string          `json:"state,omitempty"`
	Message    *runtimeMessage `json:"message,omitempty"`
	Sender     *messageSender  `json:"sender,omitempty"`
	Name       string          `json:"name,omitempty"`
	Tabs       []session.Tab   `json:"tabs,omitempty"`
}

type helloFrame struct {
	Type                 string `json:"type"`
	IdleThresholdSeconds int    `json:"idleThresholdSeconds"`
}

type directiveFrame struct {
	Type      string            `json:"type"`
	TabID     int               `json:"tabId"`
	Directive session.Directive `json:"directive"`
}

type badgeFrame struct {
	Type  string `json:"type"`
	TabID int    `json:"tabId"`
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

// toEvent converts a frame into a coordinator event, updating the tab
// registry on the way. A nil event means the frame only touched the
// registry.
func (h *Hub) toEvent(f inboundFrame) (session.Event, error) {
	switch f.Type {
	case FrameTabActivated:
		h.tabs.activate(f.TabID, f.URL)
		return session.TabActivated{TabID: f.TabID}, nil

	case FrameTabUpdated:
		var ci changeInfo
		if f.ChangeInfo != nil {
			ci = *f.ChangeInfo
		}
		tab := session.Tab{ID: f.TabID}
		if f.Tab != nil {
			tab = *f.Tab
			tab.ID = f.TabID
		}
		if tab.URL == "" {
			tab.URL = ci.URL
		}
		tab = h.tabs.update(tab)
		return session.TabUpdated{TabID: f.TabID, Status: ci.Status, URL: ci.URL, Tab: tab}, nil

	case FrameTabRemoved:
		h.tabs.remove(f.TabID)
		return session.TabRemoved{TabID: f.TabID}, nil

	case FrameIdleStateChanged:
		switch state := session.IdleState(f.State); state {
		case session.IdleActive, session.IdleIdle, session.IdleLocked:
			return session.IdleStateChanged{State: state}, nil
		default:
			return nil, fmt.Errorf("unknown idle state %q", f.State)
		}

	case FrameMessage:
		if f.Message == nil {
			return nil, fmt.Errorf("message frame without message")
		}
		ev := session.Message{MessageType: f.Message.Type}
		if f.Sender != nil && f.Sender.TabID != nil {
			sender := h.tabs.update(session.Tab{ID: *f.Sender.TabID, URL: f.Sender.URL})
			ev.Sender = &sender
		}
		return ev, nil

	case FrameAlarmFired:
		return session.AlarmFired{Name: f.Name}, nil

	case FrameTabs:
		h.tabs.replace(f.Tabs)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}
