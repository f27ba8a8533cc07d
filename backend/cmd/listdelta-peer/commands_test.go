package main

import (
	"testing"

	"listdelta/backend/config"
	"listdelta/backend/history"
	"listdelta/backend/list"

	"github.com/stretchr/testify/require"
)

func TestCommander(t *testing.T) {
	l := list.New[string](config.Assembler{}.Default(), nil)
	hist := history.NewManager(0)
	require.NoError(t, hist.Attach(l.Tx()))
	c := newCommander(l, hist)

	for _, line := range []string{
		"add b c",
		"ins 0 a",
		"set 2 C",
		"begin",
		"del 0 2",
		"rollback",
		"begin live",
		"add d",
		"commit",
		"undo",
	} {
		_, err := c.run(line)
		require.NoError(t, err, line)
	}

	out, err := c.run("print")
	require.NoError(t, err)
	require.Equal(t, `["a" "b" "C"]`, out)

	_, err = c.run("redo")
	require.NoError(t, err)
	out, err = c.run("print")
	require.NoError(t, err)
	require.Equal(t, `["a" "b" "C" "d"]`, out)

	_, err = c.run("del x")
	require.Error(t, err)

	out, err = c.run("help")
	require.NoError(t, err)
	require.Equal(t, usage, out)
}

func TestCommanderLocking(t *testing.T) {
	l := list.New[string](config.Assembler{}.Default(), nil)
	hist := history.NewManager(0)
	require.NoError(t, hist.Attach(l.Tx()))
	c := newCommander(l, hist)

	t.Run("should hold the lock for a whole transaction", func(t *testing.T) {
		_, err := c.run("begin")
		require.NoError(t, err)
		_, err = c.run("add a")
		require.NoError(t, err)
		require.False(t, l.TryLock(), "list must stay locked while a transaction is open")

		_, err = c.run("commit")
		require.NoError(t, err)
		require.True(t, l.TryLock())
		l.Unlock()
	})

	t.Run("should release the lock after a failed command", func(t *testing.T) {
		_, err := c.run("del 5")
		require.Error(t, err)
		require.True(t, l.TryLock())
		l.Unlock()
	})

	t.Run("should discard open transactions on close", func(t *testing.T) {
		_, err := c.run("begin")
		require.NoError(t, err)
		_, err = c.run("add b")
		require.NoError(t, err)

		require.NoError(t, c.close())
		require.True(t, l.TryLock())
		require.Equal(t, 0, l.Tx().Depth())
		require.Equal(t, []string{"a", "b"}, l.Values())
		l.Unlock()

		_, err = c.run("print")
		require.ErrorIs(t, err, errCommanderClosed)
	})
}
