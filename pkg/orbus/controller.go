package orbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Defaults of Controller.
const (
	DefaultTimeout      = 500 * time.Millisecond
	DefaultPollInterval = 100 * time.Millisecond
)

// StateNotifier is called when the connection state changed.
type StateNotifier interface {
	StateChanged(context.Context, ConnState)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, ConnState)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, state ConnState) {
	f(ctx, state)
}

// Controller owns the link to one board.
// At most one round-trip is outstanding at any time.
type Controller struct {
	Transport Transport
	Port      string
	BaudRate  int
	// Timeout is the round-trip timeout of the liveness probe in Start.
	Timeout time.Duration
	// PollInterval bounds each blocking read of the receive loop.
	PollInterval time.Duration
	// MaxFrameLength limits the frame body in both directions.
	MaxFrameLength int
	Notifier       StateNotifier

	registry Registry
	queue    Queue

	rtLock   sync.Mutex // serializes round-trips
	lock     sync.Mutex
	state    ConnState
	status   Status
	failure  error
	seq      uint64
	awaiting bool
	replyCh  chan reply
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopping int32
}

type reply struct {
	seq   uint64
	frame *Frame
}

// NewController creates a Controller with defaults.
func NewController(t Transport, port string, baudRate int) *Controller {
	return &Controller{
		Transport:      t,
		Port:           port,
		BaudRate:       baudRate,
		Timeout:        DefaultTimeout,
		PollInterval:   DefaultPollInterval,
		MaxFrameLength: DefaultMaxFrameLength,
		registry:       Registry{handlers: make(map[byte]Handler)},
	}
}

// Registry exposes the handler registry.
func (c *Controller) Registry() *Registry {
	return &c.registry
}

// Register binds a handler to the category.
func (c *Controller) Register(category byte, h Handler) error {
	return c.registry.Register(category, h)
}

// Clear removes the handler of the category.
func (c *Controller) Clear(category byte) {
	c.registry.Clear(category)
}

// ClearAll removes all handlers.
func (c *Controller) ClearAll() {
	c.registry.ClearAll()
}

// Enqueue adds packets to be sent with the next SendPending.
func (c *Controller) Enqueue(pkts ...*Packet) *Controller {
	c.queue.Append(pkts...)
	return c
}

// Pending returns the count of queued packets.
func (c *Controller) Pending() int {
	return c.queue.Len()
}

// ResetPending discards queued packets.
func (c *Controller) ResetPending() {
	c.queue.Reset()
}

// Status gets the status of the latest round-trip.
func (c *Controller) Status() Status {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.status
}

// State gets the connection state.
func (c *Controller) State() ConnState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Start opens the transport and probes the board.
func (c *Controller) Start() error {
	c.lock.Lock()
	state, prevDone := c.state, c.doneCh
	c.lock.Unlock()
	if state != StateClosed {
		return nil
	}
	if prevDone != nil {
		<-prevDone
	}
	if err := c.Transport.Open(c.Port, c.BaudRate); err != nil {
		glog.Errorf("unable to open %s: %v", c.Port, err)
		return &TransportError{Op: "open", Err: err}
	}
	if !c.Transport.IsOpen() {
		glog.Errorf("port not opened: %s", c.Port)
		return &TransportError{Op: "open", Err: ErrNotOpen}
	}
	glog.V(2).Infof("port %s opened at %d baud", c.Port, c.BaudRate)

	atomic.StoreInt32(&c.stopping, 0)
	c.lock.Lock()
	c.state, c.status, c.failure, c.awaiting = StateOpening, StatusOK, nil, false
	c.replyCh = make(chan reply, 1)
	c.stopCh, c.doneCh = make(chan struct{}), make(chan struct{})
	stopCh, doneCh, replyCh := c.stopCh, c.doneCh, c.replyCh
	c.lock.Unlock()
	go c.receiveLoop(stopCh, doneCh, replyCh)
	c.notify(StateOpening)

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := c.Probe(timeout); err != nil {
		glog.Errorf("board not found on %s: %v", c.Port, err)
		c.Stop()
		return err
	}

	c.lock.Lock()
	opened := c.state == StateOpening
	if opened {
		c.state = StateOpen
	}
	c.lock.Unlock()
	if !opened {
		return ErrNotOpen
	}
	glog.Infof("connection started: %s", c.Port)
	c.notify(StateOpen)
	return nil
}

// Stop closes the connection and discards queued packets.
// A waiting round-trip fails with ErrNotOpen.
func (c *Controller) Stop() {
	atomic.StoreInt32(&c.stopping, 1)
	c.queue.Reset()
	c.lock.Lock()
	if c.state == StateClosed {
		c.lock.Unlock()
		return
	}
	c.state = StateClosed
	stopCh, doneCh := c.stopCh, c.doneCh
	c.lock.Unlock()

	close(stopCh)
	if err := c.Transport.Close(); err != nil {
		glog.Warningf("close %s: %v", c.Port, err)
	}
	<-doneCh
	glog.V(2).Infof("connection stopped: %s", c.Port)
	c.notify(StateClosed)
}

// Run implements Runnable.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}
	c.lock.Lock()
	stopCh := c.stopCh
	c.lock.Unlock()
	select {
	case <-ctx.Done():
		c.Stop()
		return ctx.Err()
	case <-stopCh:
		c.lock.Lock()
		err := c.failure
		c.lock.Unlock()
		return err
	}
}

// Probe flushes the transport and round-trips a liveness probe.
func (c *Controller) Probe(timeout time.Duration) error {
	if err := c.Transport.Flush(); err != nil {
		glog.Warningf("flush %s: %v", c.Port, err)
	}
	return c.SendBatch([]*Packet{NewAliveProbe()}, timeout)
}

// SendBatch sends packets in one frame and waits for the reply.
// The reply is dispatched to registered handlers before returning.
// A failed batch is never requeued.
func (c *Controller) SendBatch(batch []*Packet, timeout time.Duration) error {
	if len(batch) == 0 {
		return nil
	}
	frame, err := EncodeFrame(batch, c.MaxFrameLength)
	if err != nil {
		glog.Errorf("encode: %v", err)
		c.setStatus(StatusBufferFull)
		return err
	}
	return c.exchangeAndDispatch(frame, timeout)
}

// SendSync sends a single packet with up to maxRetries attempts.
func (c *Controller) SendSync(pkt *Packet, maxRetries int, timeout time.Duration) (err error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = c.SendBatch([]*Packet{pkt}, timeout); err == nil {
			return nil
		}
		if errors.Is(err, ErrBufferFull) || errors.Is(err, ErrNotOpen) {
			return err
		}
		glog.Warningf("send %v attempt %d/%d: %v", pkt, attempt, maxRetries, err)
	}
	return err
}

// SendPending sends all queued packets in one frame and waits for the reply.
// If the packets don't fit, ErrBufferFull is returned and the queue is kept.
func (c *Controller) SendPending(timeout time.Duration) error {
	if c.State() == StateClosed {
		return ErrNotOpen
	}
	var frame *Frame
	pkts, err := c.queue.DrainIf(func(pkts []*Packet) (err error) {
		if len(pkts) > 0 {
			frame, err = EncodeFrame(pkts, c.MaxFrameLength)
		}
		return
	})
	if err != nil {
		glog.Errorf("encode pending: %v", err)
		c.setStatus(StatusBufferFull)
		return err
	}
	if len(pkts) == 0 {
		return nil
	}
	return c.exchangeAndDispatch(frame, timeout)
}

func (c *Controller) exchangeAndDispatch(frame *Frame, timeout time.Duration) error {
	pkts, err := c.exchange(frame, timeout)
	if err != nil {
		return err
	}
	if err = c.registry.Dispatch(context.Background(), pkts); err != nil {
		glog.V(2).Infof("dispatch reply: %v", err)
	}
	return nil
}

// exchange performs exactly one round-trip.
func (c *Controller) exchange(frame *Frame, timeout time.Duration) ([]*Packet, error) {
	c.rtLock.Lock()
	defer c.rtLock.Unlock()

	c.lock.Lock()
	if c.state == StateClosed {
		c.lock.Unlock()
		return nil, ErrNotOpen
	}
	c.seq++
	seq, stopCh, replyCh := c.seq, c.stopCh, c.replyCh
	c.awaiting = true
	c.lock.Unlock()

	data := frame.Bytes()
	glog.V(3).Infof("SND %d bytes: % x", len(data), data)
	n, err := c.Transport.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("written %d bytes instead of %d", n, len(data))
	}
	if err != nil {
		err = &TransportError{Op: "write", Err: err}
		glog.Errorf("write %s: %v", c.Port, err)
		c.fail(err)
		return nil, err
	}

	pkts, err := c.await(seq, timeout, stopCh, replyCh)
	if errors.Is(err, ErrNotOpen) {
		c.lock.Lock()
		if c.failure != nil {
			err = c.failure
		}
		c.lock.Unlock()
		return nil, err
	}
	c.setStatus(StatusOf(err))
	return pkts, err
}

func (c *Controller) await(seq uint64, timeout time.Duration, stopCh <-chan struct{}, replyCh <-chan reply) ([]*Packet, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case r := <-replyCh:
			if r.seq != seq {
				continue
			}
			if r.frame == nil || r.frame.Len() == 0 {
				return nil, ErrEmpty
			}
			pkts, err := DecodeFrame(r.frame)
			if err != nil {
				glog.Errorf("decode reply: %v", err)
				return nil, err
			}
			return pkts, nil
		case <-timer.C:
			c.lock.Lock()
			if c.seq == seq {
				c.awaiting = false
			}
			c.lock.Unlock()
			glog.V(2).Infof("timeout waiting reply on %s", c.Port)
			return nil, ErrTimeout
		case <-stopCh:
			return nil, ErrNotOpen
		}
	}
}

func (c *Controller) receiveLoop(stopCh <-chan struct{}, doneCh chan<- struct{}, replyCh chan reply) {
	defer close(doneCh)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	decoder := NewDecoder(c.MaxFrameLength)
	for {
		if atomic.LoadInt32(&c.stopping) != 0 {
			return
		}
		data, err := c.Transport.Read(interval)
		if atomic.LoadInt32(&c.stopping) != 0 {
			return
		}
		if err != nil {
			if IsTimeout(err) {
				// an idle gap ends any partial frame
				if decoder.Abandon() {
					glog.Warningf("drop truncated frame on %s", c.Port)
				}
				continue
			}
			err = &TransportError{Op: "read", Err: err}
			glog.Errorf("read %s: %v", c.Port, err)
			c.fail(err)
			return
		}
		if len(data) == 0 {
			c.deliver(replyCh, nil)
			continue
		}
		glog.V(3).Infof("RCV %d bytes: % x", len(data), data)
		for _, b := range data {
			if !decoder.Feed(b) {
				continue
			}
			frame := decoder.Frame()
			decoder.Reset()
			if frame.Async {
				c.dispatchAsync(ctx, frame)
			} else {
				c.deliver(replyCh, frame)
			}
		}
	}
}

// deliver hands a reply to the waiting round-trip, if any.
func (c *Controller) deliver(replyCh chan reply, frame *Frame) {
	c.lock.Lock()
	awaiting, seq := c.awaiting, c.seq
	c.awaiting = false
	c.lock.Unlock()
	if !awaiting {
		if frame != nil {
			glog.Warningf("drop unexpected reply of %d bytes", frame.Len())
		}
		return
	}
	r := reply{seq: seq, frame: frame}
	for {
		select {
		case replyCh <- r:
			return
		default:
			select {
			case <-replyCh:
			default:
			}
		}
	}
}

func (c *Controller) dispatchAsync(ctx context.Context, frame *Frame) {
	pkts, err := DecodeFrame(frame)
	if err != nil {
		glog.Warningf("drop async frame: %v", err)
		return
	}
	if err = c.registry.Dispatch(ctx, pkts); err != nil {
		glog.V(2).Infof("dispatch async: %v", err)
	}
}

// fail closes the connection after an unrecoverable transport error.
func (c *Controller) fail(err error) {
	c.lock.Lock()
	if c.state == StateClosed {
		c.lock.Unlock()
		return
	}
	c.state, c.status, c.failure = StateClosed, StatusTransportError, err
	stopCh := c.stopCh
	c.lock.Unlock()

	atomic.StoreInt32(&c.stopping, 1)
	close(stopCh)
	c.Transport.Close()
	c.notify(StateClosed)
}

func (c *Controller) setStatus(status Status) {
	c.lock.Lock()
	c.status = status
	c.lock.Unlock()
}

func (c *Controller) notify(state ConnState) {
	if n := c.Notifier; n != nil {
		n.StateChanged(context.Background(), state)
	}
}
