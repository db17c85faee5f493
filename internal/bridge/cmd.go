package bridge

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Cmd turns a handle into a tea.Cmd. The wait happens on bubbletea's command
// goroutine, so Update keeps running. A released handle yields no message at
// all: the component that let go of it never hears back.
func Cmd[T any](h *Handle[T], toMsg func(T, error) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		v, err := h.Await(context.Background())
		if IsCancelled(err) {
			return nil
		}
		return toMsg(v, err)
	}
}

// Go spawns fn and returns the handle together with the command that
// delivers its result.
func Go[T any](ctx context.Context, exec Executor, fn func(context.Context) (T, error), toMsg func(T, error) tea.Msg) (*Handle[T], tea.Cmd) {
	h := Spawn(ctx, exec, fn)
	return h, Cmd(h, toMsg)
}
