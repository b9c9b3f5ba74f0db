package framework

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Loop runs tasks periodically, ordered by priority level.
type Loop struct {
	Interval time.Duration

	tasks   [PriorityLevels]taskList
	runners []Runnable

	wakeUpCh chan struct{}
	once     sync.Once
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type taskList struct {
	tasks     []Task
	postHooks []Task
	lock      sync.Mutex
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: 100 * time.Millisecond}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddTask registers tasks at the priority level.
// Tasks which are also Runnable are started with the loop.
func (l *Loop) AddTask(priorityLevel int, tasks ...Task) *Loop {
	lst := &l.tasks[priorityLevel]
	lst.lock.Lock()
	lst.tasks = append(lst.tasks, tasks...)
	lst.lock.Unlock()
	for _, task := range tasks {
		if runner, ok := task.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// PostRunAt injects one-shot tasks executed after the regular
// tasks of the priority level in the next iteration.
func (l *Loop) PostRunAt(priorityLevel int, hooks ...Task) {
	lst := &l.tasks[priorityLevel]
	lst.lock.Lock()
	lst.postHooks = append(lst.postHooks, hooks...)
	lst.lock.Unlock()
}

// TriggerNext schedules the next iteration immediately.
func (l *Loop) TriggerNext() {
	l.init()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.init()
	runner := NewRunnerWith(ctx)
	runner.Go(l.runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.runIteration(ctx)
		case <-l.wakeUpCh:
			l.runIteration(ctx)
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail() {
	runner := NewRunner().HandleSignals()
	if err := l.Run(runner.Context); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

func (l *Loop) init() {
	l.once.Do(func() {
		l.wakeUpCh = make(chan struct{}, 1)
	})
}

func (l *Loop) runIteration(ctx context.Context) {
	for i := 0; i < PriorityLevels; i++ {
		l.tasks[i].run(ctx)
	}
}

func (t *taskList) run(ctx context.Context) {
	t.lock.Lock()
	tasks := t.tasks
	t.lock.Unlock()
	runTasks(ctx, tasks)
	t.lock.Lock()
	hooks := t.postHooks
	t.postHooks = nil
	t.lock.Unlock()
	runTasks(ctx, hooks)
}

func runTasks(ctx context.Context, tasks []Task) {
	for _, task := range tasks {
		if err := task.RunTask(ctx); err != nil {
			glog.Errorf("task error: %v", err)
		}
	}
}
