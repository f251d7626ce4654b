package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitInvokesInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int

	b.On(Connect, func(args ...interface{}) { order = append(order, 1) })
	b.On(Connect, func(args ...interface{}) { order = append(order, 2) })
	b.On(Connect, func(args ...interface{}) { order = append(order, 3) })

	b.Emit(Connect)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEmitPassesArgsThrough(t *testing.T) {
	b := New()
	var gotArgs []interface{}
	b.On(Authenticate, func(args ...interface{}) { gotArgs = args })

	b.Emit(Authenticate, "record", "socket")

	assert.Equal(t, []interface{}{"record", "socket"}, gotArgs)
}

func TestEmitSurvivesPanickingSubscriber(t *testing.T) {
	b := New()
	secondRan := false

	b.On(Disconnect, func(args ...interface{}) { panic("boom") })
	b.On(Disconnect, func(args ...interface{}) { secondRan = true })

	assert.NotPanics(t, func() { b.Emit(Disconnect) })
	assert.True(t, secondRan, "a panicking subscriber must not block its successors")
}

func TestOffRemovesOnlyMatchingSubscription(t *testing.T) {
	b := New()
	var calls []string

	subA := b.On(Connect, func(args ...interface{}) { calls = append(calls, "a") })
	b.On(Connect, func(args ...interface{}) { calls = append(calls, "b") })

	b.Off(subA)
	b.Emit(Connect)

	assert.Equal(t, []string{"b"}, calls)
}

func TestEmitUnknownChannelIsNoOp(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() { b.Emit(Channel("bogus")) })
}
