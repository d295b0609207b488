// Package secrets reads backend credentials from the desktop Secret
// Service. Credentials never touch the reminder database.
package secrets

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	secretService  = "org.freedesktop.secrets"
	secretPath     = "/org/freedesktop/secrets"
	serviceIface   = "org.freedesktop.Secret.Service"
	plainAlgorithm = "plain"
)

// ErrNotFound is returned when no secret matches the given attributes.
var ErrNotFound = errors.New("secret not found")

type secret struct {
	Session     dbus.ObjectPath
	Parameters  []byte
	Value       []byte
	ContentType string
}

// Store is a session-bus connection to the Secret Service with an open
// plain (unencrypted transport) session.
type Store struct {
	conn    *dbus.Conn
	svc     dbus.BusObject
	session dbus.ObjectPath
}

func Open() (*Store, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	svc := conn.Object(secretService, secretPath)

	var output dbus.Variant
	var session dbus.ObjectPath
	call := svc.Call(serviceIface+".OpenSession", 0, plainAlgorithm, dbus.MakeVariant(""))
	if err := call.Store(&output, &session); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open secret session: %w", err)
	}

	return &Store{conn: conn, svc: svc, session: session}, nil
}

// Lookup returns the first secret matching attrs, unlocking it if needed.
func (s *Store) Lookup(attrs map[string]string) (string, error) {
	var unlocked, locked []dbus.ObjectPath
	call := s.svc.Call(serviceIface+".SearchItems", 0, attrs)
	if err := call.Store(&unlocked, &locked); err != nil {
		return "", fmt.Errorf("search items: %w", err)
	}

	if len(unlocked) == 0 && len(locked) > 0 {
		var prompt dbus.ObjectPath
		call := s.svc.Call(serviceIface+".Unlock", 0, locked)
		if err := call.Store(&unlocked, &prompt); err != nil {
			return "", fmt.Errorf("unlock items: %w", err)
		}
	}
	if len(unlocked) == 0 {
		return "", ErrNotFound
	}

	secretsByPath := make(map[dbus.ObjectPath]secret)
	call = s.svc.Call(serviceIface+".GetSecrets", 0, unlocked[:1], s.session)
	if err := call.Store(&secretsByPath); err != nil {
		return "", fmt.Errorf("get secrets: %w", err)
	}

	for _, sec := range secretsByPath {
		return string(sec.Value), nil
	}
	return "", ErrNotFound
}

// LookupAccount fetches the stored credential for one remote account.
func (s *Store) LookupAccount(userID string) (string, error) {
	return s.Lookup(map[string]string{
		"service": "remindd",
		"account": userID,
	})
}

func (s *Store) Close() error {
	return s.conn.Close()
}
