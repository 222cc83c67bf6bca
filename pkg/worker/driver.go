package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/google/uuid"
)

// Options configure a Driver.
type Options struct {
	// LogDir receives the per-task log files.
	LogDir   string
	LogLevel slog.Level
	// Timeout bounds one task in Run. Zero means no limit.
	Timeout time.Duration
	// PollInterval is how often Run checks for cancellation while a task
	// is quiet.
	PollInterval time.Duration
}

// Driver submits tasks to a worker it starts on demand. A cancelled or
// failed worker is abandoned and the next task gets a fresh one.
type Driver struct {
	mu        sync.Mutex
	w         *Worker
	newKernel func() kernel.Kernel
	opts      Options
}

// NewDriver returns a driver whose workers open kernels with newKernel.
func NewDriver(newKernel func() kernel.Kernel, o Options) *Driver {
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	return &Driver{newKernel: newKernel, opts: o}
}

// Handle follows one submitted task.
type Handle struct {
	TaskID string
	msgs   <-chan Message
	w      *Worker
}

// Poll returns the next message without blocking.
func (h *Handle) Poll() (Message, bool) {
	select {
	case m := <-h.msgs:
		return m, true
	default:
		return nil, false
	}
}

// Next blocks for the next message. It fails when ctx ends or the worker
// exits without sending one.
func (h *Handle) Next(ctx context.Context) (Message, error) {
	select {
	case m := <-h.msgs:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.w.Done():
		// The worker may have queued its last message before exiting.
		select {
		case m := <-h.msgs:
			return m, nil
		default:
		}
		return nil, &errs.WorkerError{TaskID: h.TaskID, Err: errors.New("worker exited")}
	}
}

func (d *Driver) worker() *Worker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w != nil {
		select {
		case <-d.w.Done():
			d.w = nil
		default:
		}
	}
	if d.w == nil {
		d.w = Start(d.newKernel, d.opts.LogDir, d.opts.LogLevel)
	}
	return d.w
}

// Submit sends t to the current worker, starting one if needed.
func (d *Driver) Submit(t Task) (*Handle, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	w := d.worker()
	msgs, err := w.Submit(t)
	if err != nil {
		return nil, err
	}
	return &Handle{TaskID: t.ID, msgs: msgs, w: w}, nil
}

// Cancel abandons the current worker and all of its state.
func (d *Driver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w != nil {
		d.w.Abandon()
		d.w = nil
	}
}

// Close stops the current worker.
func (d *Driver) Close() { d.Cancel() }

// Run submits t and waits for its outcome, passing the log path and each
// progress line to onMessage when it is not nil. When ctx ends or the
// timeout passes, the worker is abandoned and a cancelled WorkerError is
// returned. A Failure is returned as its error.
func (d *Driver) Run(ctx context.Context, t Task, onMessage func(Message)) (*Result, error) {
	log := ctxlog.FromContext(ctx)
	h, err := d.Submit(t)
	if err != nil {
		return nil, err
	}
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}
	tick := time.NewTicker(d.opts.PollInterval)
	defer tick.Stop()

	for {
		if m, ok := h.Poll(); ok {
			switch m := m.(type) {
			case Result:
				return &m, nil
			case Failure:
				if m.Fatal {
					d.Cancel()
				}
				return nil, m.Err
			default:
				if onMessage != nil {
					onMessage(m)
				}
			}
			continue
		}
		select {
		case <-ctx.Done():
			log.Warn("task cancelled", "task", h.TaskID, "err", ctx.Err())
			d.Cancel()
			return nil, &errs.WorkerError{TaskID: h.TaskID, Cancelled: true, Err: ctx.Err()}
		case <-h.w.Done():
			if len(h.msgs) > 0 {
				continue
			}
			return nil, &errs.WorkerError{TaskID: h.TaskID, Err: errors.New("worker exited")}
		case <-tick.C:
		}
	}
}
