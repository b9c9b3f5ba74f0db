package framework

import "context"

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Task defines logic executed on every loop iteration.
type Task interface {
	RunTask(context.Context) error
}

// TaskFunc is the func form of Task.
type TaskFunc func(context.Context) error

// RunTask implements Task.
func (f TaskFunc) RunTask(ctx context.Context) error {
	return f(ctx)
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 16

// Predefine priority levels
const (
	PrLvTop    int = 0
	PrLvHigh   int = 4
	PrLvNormal int = 8
	PrLvLow    int = 12
	PrLvIdle   int = PriorityLevels - 1

	// PrLvSense is the alias of priority level for reading the board.
	PrLvSense = PrLvHigh
	// PrLvControl is the alias of priority level for computing commands.
	PrLvControl = PrLvNormal
	// PrLvAcuate is the alias of priority level for writing the board.
	PrLvAcuate = PrLvLow
)
