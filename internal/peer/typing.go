package peer

import (
	"sync"
	"time"
)

// TypingNotifier debounces typing indicators. Every keystroke reports
// the active state and restarts the idle timer; when no keystroke
// arrives within the idle window the inactive state is reported once.
type TypingNotifier struct {
	idle time.Duration
	emit func(isTyping bool)

	mu    sync.Mutex
	timer *time.Timer
}

func NewTypingNotifier(idle time.Duration, emit func(isTyping bool)) *TypingNotifier {
	return &TypingNotifier{idle: idle, emit: emit}
}

// Keystroke records input activity.
func (t *TypingNotifier) Keystroke() {
	t.emit(true)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, func() {
		t.emit(false)
	})
}

// Stop cancels the pending idle notification without emitting anything.
func (t *TypingNotifier) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
