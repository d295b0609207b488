package notify

// Notification is what the notifier shows for a fired reminder.
type Notification struct {
	ReminderID string
	Title      string
	Body       string
}

// Notifier delivers desktop notifications. Implementations must be able
// to withdraw an already-delivered notification when its reminder is
// deleted or completed.
type Notifier interface {
	Send(n Notification) error
	Withdraw(reminderID string) error
	Close() error
}

// Nop is a Notifier that does nothing; used headless and in tests.
type Nop struct{}

func (Nop) Send(Notification) error { return nil }
func (Nop) Withdraw(string) error   { return nil }
func (Nop) Close() error            { return nil }
