package transport

import (
	"context"
	"sync"

	"github.com/sh1vu7/secreteshare/internal/share"
)

// Op names a Transport method, for failure injection on a Recorder.
type Op string

const (
	OpDeliver Op = "deliver"
	OpControl Op = "control"
	OpDelete  Op = "delete"
	OpNotify  Op = "notify"
)

// Delivery is one recorded Deliver call.
type Delivery struct {
	Content share.ContentRef
	To      int64
	Options DeliverOptions
	Message share.MessageRef
}

// Control is one recorded control message.
type Control struct {
	To      int64
	Payload ControlPayload
	Message share.MessageRef
}

// Notice is one recorded Notify call.
type Notice struct {
	To   int64
	Text string
}

// Recorder is an in-memory Transport. It keeps every sent message so
// deletes can report whether the message still existed. The serve command
// falls back to it when no webhook is configured, and tests use it to
// observe side effects.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu         sync.Mutex
	nextID     int64
	live       map[share.MessageRef]bool
	deliveries []Delivery
	controls   []Control
	deleted    []share.MessageRef
	notices    []Notice
	failures   map[Op][]error
}

var _ Transport = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		live:     make(map[share.MessageRef]bool),
		failures: make(map[Op][]error),
	}
}

// FailNext makes the next call to op return err. Calls queue up in order.
func (r *Recorder) FailNext(op Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op] = append(r.failures[op], err)
}

func (r *Recorder) injected(op Op) error {
	queue := r.failures[op]
	if len(queue) == 0 {
		return nil
	}
	r.failures[op] = queue[1:]
	return queue[0]
}

func (r *Recorder) sendLocked(chat int64) share.MessageRef {
	r.nextID++
	ref := share.MessageRef{ChatID: chat, MessageID: r.nextID}
	r.live[ref] = true
	return ref
}

// Deliver records a delivered copy of content.
func (r *Recorder) Deliver(ctx context.Context, content share.ContentRef, to int64, opts DeliverOptions) (DeliveryResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected(OpDeliver); err != nil {
		return DeliveryResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return DeliveryResult{}, err
	}
	ref := r.sendLocked(to)
	r.deliveries = append(r.deliveries, Delivery{Content: content, To: to, Options: opts, Message: ref})
	return DeliveryResult{Message: ref}, nil
}

// SendControlMessage records a control message.
func (r *Recorder) SendControlMessage(ctx context.Context, to int64, p ControlPayload) (share.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected(OpControl); err != nil {
		return share.MessageRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return share.MessageRef{}, err
	}
	ref := r.sendLocked(to)
	r.controls = append(r.controls, Control{To: to, Payload: p, Message: ref})
	return ref, nil
}

// DeleteMessage removes ref and reports whether it was still present.
func (r *Recorder) DeleteMessage(ctx context.Context, ref share.MessageRef) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected(OpDelete); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !r.live[ref] {
		return false, nil
	}
	delete(r.live, ref)
	r.deleted = append(r.deleted, ref)
	return true, nil
}

// Notify records a notice.
func (r *Recorder) Notify(ctx context.Context, to int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected(OpNotify); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.notices = append(r.notices, Notice{To: to, Text: text})
	return nil
}

// Deliveries returns a copy of the recorded deliveries.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// Controls returns a copy of the recorded control messages.
func (r *Recorder) Controls() []Control {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Control(nil), r.controls...)
}

// Deleted returns the messages removed so far.
func (r *Recorder) Deleted() []share.MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]share.MessageRef(nil), r.deleted...)
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Live reports whether ref was sent and not deleted.
func (r *Recorder) Live(ref share.MessageRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[ref]
}
