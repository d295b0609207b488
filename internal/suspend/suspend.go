// Package suspend detects system sleep and resume through logind.
package suspend

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	loginInterface = "org.freedesktop.login1.Manager"
	sleepMember    = "PrepareForSleep"
)

// Watcher invokes onWake after every resume from system sleep. Sleep
// duration is unbounded, so the callback should re-evaluate every pending
// deadline rather than correct individual timers.
type Watcher struct {
	conn    *dbus.Conn
	logger  *slog.Logger
	onWake  func()
	signals chan *dbus.Signal
	done    chan struct{}
}

// NewWatcher subscribes to logind's PrepareForSleep on the system bus.
func NewWatcher(onWake func(), logger *slog.Logger) (*Watcher, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(loginInterface),
		dbus.WithMatchMember(sleepMember),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("add match: %w", err)
	}

	w := &Watcher{
		conn:    conn,
		logger:  logger,
		onWake:  onWake,
		signals: make(chan *dbus.Signal, 4),
		done:    make(chan struct{}),
	}

	conn.Signal(w.signals)
	go w.listen()
	return w, nil
}

func (w *Watcher) listen() {
	for {
		select {
		case <-w.done:
			return
		case sig, ok := <-w.signals:
			if !ok {
				return
			}
			if len(sig.Body) != 1 {
				continue
			}
			// PrepareForSleep(true) precedes suspend; false follows resume.
			sleeping, _ := sig.Body[0].(bool)
			if sleeping {
				w.logger.Debug("system entering sleep")
				continue
			}
			w.logger.Info("system resumed from sleep")
			w.onWake()
		}
	}
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.conn.Close()
}
