package service

import "time"

// Timer cancellable scheduled task
type Timer interface {
	// Stop prevents the task from running. Returns false if it already ran or was stopped.
	Stop() bool
}

// Clock time source and timer factory of the engine
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// NewRealClock wall clock backed by time.AfterFunc
func NewRealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
