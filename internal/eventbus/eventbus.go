// Package eventbus fans out the three connection lifecycle channels
// (authenticate, connect, disconnect) to subscribers in registration
// order, synchronously, with catch-and-log isolation between handlers
// (spec §4.8).
package eventbus

import "log/slog"

// Channel names the three fixed subscription channels.
type Channel string

const (
	Authenticate Channel = "authenticate"
	Connect      Channel = "connect"
	Disconnect   Channel = "disconnect"
)

// Handler is invoked for an event on a channel with whatever arguments the
// channel defines are packed into args (record, socket, reason, ...).
type Handler func(args ...interface{})

// Subscription identifies a registered handler for Off.
type Subscription struct {
	channel Channel
	seq     uint64
}

type subscriber struct {
	seq uint64
	fn  Handler
}

// Bus holds one ordered subscriber slice per channel.
type Bus struct {
	authenticate []subscriber
	connect      []subscriber
	disconnect   []subscriber
	nextSeq      uint64
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{}
}

// On appends handler to the named channel's subscriber list and returns a
// Subscription that Off can later remove.
func (b *Bus) On(ch Channel, h Handler) Subscription {
	b.nextSeq++
	sub := subscriber{seq: b.nextSeq, fn: h}
	switch ch {
	case Authenticate:
		b.authenticate = append(b.authenticate, sub)
	case Connect:
		b.connect = append(b.connect, sub)
	case Disconnect:
		b.disconnect = append(b.disconnect, sub)
	default:
		slog.Error("eventbus: unknown channel in On", "channel", ch)
	}
	return Subscription{channel: ch, seq: sub.seq}
}

// Off removes the handler identified by sub, if still registered.
func (b *Bus) Off(sub Subscription) {
	remove := func(subs []subscriber) []subscriber {
		out := subs[:0:0]
		for _, s := range subs {
			if s.seq == sub.seq {
				continue
			}
			out = append(out, s)
		}
		return out
	}
	switch sub.channel {
	case Authenticate:
		b.authenticate = remove(b.authenticate)
	case Connect:
		b.connect = remove(b.connect)
	case Disconnect:
		b.disconnect = remove(b.disconnect)
	default:
		slog.Error("eventbus: unknown channel in Off", "channel", sub.channel)
	}
}

// Emit invokes every subscriber on ch, in registration order, catching and
// logging any panic so a misbehaving handler never prevents its
// successors from running (spec §4.8, P5).
func (b *Bus) Emit(ch Channel, args ...interface{}) {
	var subs []subscriber
	switch ch {
	case Authenticate:
		subs = b.authenticate
	case Connect:
		subs = b.connect
	case Disconnect:
		subs = b.disconnect
	default:
		slog.Error("eventbus: unknown channel in Emit", "channel", ch)
		return
	}

	for _, s := range subs {
		invoke(ch, s.fn, args)
	}
}

func invoke(ch Channel, h Handler, args []interface{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("eventbus: subscriber panicked", "channel", ch, "panic", r)
		}
	}()
	h(args...)
}
