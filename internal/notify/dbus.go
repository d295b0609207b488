package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"

	actionComplete = "complete"
)

// DBus delivers notifications through the session bus notifier daemon.
// Each notification carries a "Mark completed" action; invoking it calls
// the onComplete callback with the reminder ID.
type DBus struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	logger *slog.Logger

	onComplete func(reminderID string)

	mu         sync.Mutex
	byReminder map[string]uint32
	byNotif    map[uint32]string

	signals chan *dbus.Signal
	done    chan struct{}
}

// NewDBus connects to the session bus and starts listening for action
// invocations and close signals.
func NewDBus(onComplete func(reminderID string), logger *slog.Logger) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(notifyPath),
		dbus.WithMatchInterface(notifyInterface),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("add match: %w", err)
	}

	n := &DBus{
		conn:       conn,
		obj:        conn.Object(notifyService, notifyPath),
		logger:     logger,
		onComplete: onComplete,
		byReminder: make(map[string]uint32),
		byNotif:    make(map[uint32]string),
		signals:    make(chan *dbus.Signal, 16),
		done:       make(chan struct{}),
	}

	conn.Signal(n.signals)
	go n.listen()
	return n, nil
}

// Send shows a notification, replacing any prior one for the same reminder.
func (n *DBus) Send(note Notification) error {
	n.mu.Lock()
	replaces := n.byReminder[note.ReminderID]
	n.mu.Unlock()

	actions := []string{actionComplete, "Mark completed"}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(1)),
	}

	var id uint32
	call := n.obj.Call(notifyInterface+".Notify", 0,
		"remindd", replaces, "appointment-soon", note.Title, note.Body,
		actions, hints, int32(0),
	)
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	n.mu.Lock()
	n.byReminder[note.ReminderID] = id
	n.byNotif[id] = note.ReminderID
	n.mu.Unlock()
	return nil
}

// Withdraw closes the delivered notification for a reminder, if any.
func (n *DBus) Withdraw(reminderID string) error {
	n.mu.Lock()
	id, ok := n.byReminder[reminderID]
	if ok {
		delete(n.byReminder, reminderID)
		delete(n.byNotif, id)
	}
	n.mu.Unlock()

	if !ok {
		return nil
	}
	if call := n.obj.Call(notifyInterface+".CloseNotification", 0, id); call.Err != nil {
		return fmt.Errorf("close notification: %w", call.Err)
	}
	return nil
}

func (n *DBus) Close() error {
	close(n.done)
	return n.conn.Close()
}

func (n *DBus) listen() {
	for {
		select {
		case <-n.done:
			return
		case sig, ok := <-n.signals:
			if !ok {
				return
			}
			n.handleSignal(sig)
		}
	}
}

func (n *DBus) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case notifyInterface + ".ActionInvoked":
		if len(sig.Body) != 2 {
			return
		}
		id, _ := sig.Body[0].(uint32)
		action, _ := sig.Body[1].(string)
		if action != actionComplete {
			return
		}

		n.mu.Lock()
		reminderID, ok := n.byNotif[id]
		n.mu.Unlock()
		if !ok {
			return
		}

		n.logger.Debug("notification action invoked", "reminder_id", reminderID)
		if n.onComplete != nil {
			n.onComplete(reminderID)
		}

	case notifyInterface + ".NotificationClosed":
		if len(sig.Body) < 1 {
			return
		}
		id, _ := sig.Body[0].(uint32)

		n.mu.Lock()
		if reminderID, ok := n.byNotif[id]; ok {
			delete(n.byNotif, id)
			delete(n.byReminder, reminderID)
		}
		n.mu.Unlock()
	}
}
