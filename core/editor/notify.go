package editor

import (
	"time"

	"github.com/cordum/stageflow/core/infra/bus"
	"github.com/cordum/stageflow/core/infra/logging"
	"github.com/cordum/stageflow/core/workflow"
)

// EventNotification is the bus event type carrying a Notification.
const EventNotification = "editor.notification"

// Level is the severity of a Notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification reports the outcome of one editor operation.
type Notification struct {
	SessionID string        `json:"sessionId"`
	Level     Level         `json:"level"`
	Op        string        `json:"op"`
	Kind      workflow.Kind `json:"kind,omitempty"`
	Message   string        `json:"message"`
	At        time.Time     `json:"at"`
}

// Notifier receives a Notification for every accepted or rejected mutation.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

// Multi fans a notification out to every non-nil notifier.
func Multi(notifiers ...Notifier) Notifier {
	out := make(multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

type multi []Notifier

func (m multi) Notify(n Notification) {
	for _, target := range m {
		target.Notify(n)
	}
}

// BusNotifier publishes notifications on SubjectEditorNotification.
type BusNotifier struct {
	Publisher bus.Publisher
}

func (b BusNotifier) Notify(n Notification) {
	if b.Publisher == nil {
		return
	}
	evt, err := bus.NewEvent(EventNotification, n)
	if err != nil {
		logging.Error("editor", "encode notification", "op", n.Op, "error", err)
		return
	}
	if err := b.Publisher.Publish(bus.SubjectEditorNotification, evt); err != nil {
		logging.Error("editor", "publish notification", "op", n.Op, "error", err)
	}
}
