package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"listdelta/backend/history"
	"listdelta/backend/list"
)

var errCommanderClosed = errors.New("commander is closed")

// commander edits the list with text commands. The list write lock is held
// from the command opening a transaction until the one closing it.
type commander struct {
	l    *list.List[string]
	hist *history.Manager

	mu     sync.Mutex
	locked bool
	closed bool
}

func newCommander(l *list.List[string], hist *history.Manager) *commander {
	return &commander{l: l, hist: hist}
}

const usage = `commands: add <v>... | ins <i> <v>... | del <i> [n] | set <i> <v> | sort | begin [live] | commit | rollback | discard | undo | redo | print`

// run executes a single command line and returns the text to print.
func (c *commander) run(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := fields[0], fields[1:]

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", errCommanderClosed
	}

	if !c.locked {
		c.l.Lock()
	}
	defer func() {
		c.locked = c.l.Tx().Depth() > 0
		if !c.locked {
			c.l.Unlock()
		}
	}()

	switch cmd {
	case "add":
		return "", c.l.Add(args...)
	case "ins":
		i, err := intArg(args, 0)
		if err != nil {
			return "", err
		}
		return "", c.l.Insert(i, args[1:]...)
	case "del":
		i, err := intArg(args, 0)
		if err != nil {
			return "", err
		}
		n := 1
		if len(args) > 1 {
			if n, err = intArg(args, 1); err != nil {
				return "", err
			}
		}
		olds, err := c.l.Delete(i, n)
		return strings.Join(olds, " "), err
	case "set":
		i, err := intArg(args, 0)
		if err != nil {
			return "", err
		}
		if len(args) < 2 {
			return "", fmt.Errorf("set needs a value")
		}
		prev, err := c.l.Set(i, args[1])
		return prev, err
	case "sort":
		return "", c.l.Sort(strings.Compare)
	case "begin":
		return "", c.l.Begin(len(args) == 0 || args[0] != "live")
	case "commit":
		return "", c.l.Commit()
	case "rollback":
		return "", c.l.Rollback()
	case "discard":
		return "", c.l.Discard()
	case "undo":
		return "", c.hist.Undo()
	case "redo":
		return "", c.hist.Redo()
	case "print":
		return fmt.Sprintf("%q", c.l.Values()), nil
	default:
		return usage, nil
	}
}

// close discards the transactions left open by the commands and releases the list.
func (c *commander) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if !c.locked {
		return nil
	}

	var err error
	for c.l.Tx().Depth() > 0 && err == nil {
		err = c.l.Discard()
	}
	c.locked = false
	c.l.Unlock()
	return err
}

func intArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("bad index %q: %w", args[i], err)
	}
	return n, nil
}
