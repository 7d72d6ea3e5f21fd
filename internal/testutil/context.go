package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout ограничивает ожидание в сетевых тестах.
const DefaultTimeout = 5 * time.Second

// ContextWithTimeout возвращает context теста, ограниченный duration.
// Отменяется вместе с тестом.
func ContextWithTimeout(t testing.TB, duration time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), duration)
	t.Cleanup(cancel)
	return ctx
}

// ContextWithCancel возвращает context теста с ручной отменой,
// например чтобы остановить Serve или разорвать сессию посреди теста.
func ContextWithCancel(t testing.TB) (context.Context, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)
	return ctx, cancel
}
