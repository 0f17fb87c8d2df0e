/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sound

import "sync"

// completion is a one-shot result. Whichever path resolves it first wins
// and every later resolve is a no-op.
type completion struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newCompletion() *completion {
	return &completion{
		done: make(chan struct{}),
	}
}

// resolve records err as the result and reports whether this call won.
func (c *completion) resolve(err error) bool {
	won := false
	c.once.Do(func() {
		c.err = err
		close(c.done)
		won = true
	})

	return won
}

func (c *completion) Done() <-chan struct{} {
	return c.done
}

func (c *completion) resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Err returns the result. It is only meaningful after Done is closed.
func (c *completion) Err() error {
	<-c.done

	return c.err
}
