package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusUnsubscribeDuringPublish(t *testing.T) {
	b := NewBus[int]()
	var got []int
	var unsub func()
	unsub = b.Subscribe(func(v int) {
		got = append(got, v)
		unsub()
	})
	b.Publish(1)
	b.Publish(2)
	assert.Equal(t, []int{1}, got)
}

func TestBusSubscribeDuringPublishIsNotCalledForSameEvent(t *testing.T) {
	b := NewBus[string]()
	calls := 0
	b.Subscribe(func(string) {
		b.Subscribe(func(string) { calls++ })
	})
	b.Publish("a")
	assert.Equal(t, 0, calls)
	b.Publish("b")
	assert.Equal(t, 1, calls)
}
