package async

import "github.com/mircov/lessongrab/generic"

// Run will run a function in a goroutine, returning its result via a channel.
func Run[T any](f func() T) <-chan T {
	c := make(chan T)
	go func() {
		c <- f()
	}()
	return c
}

// RunResult is like Run, but for functions returning (T, error), wrapping the
// return value as a generic.Result[T].
func RunResult[T any](f func() (T, error)) <-chan generic.Result[T] {
	c := make(chan generic.Result[T])
	go func() {
		c <- generic.NewResult(f())
	}()
	return c
}
