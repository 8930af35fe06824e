package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"exchange-rate-watcher/pkg/logger"
)

func TestStream_DeliversInSubscriptionOrder(t *testing.T) {
	s := newStream[int]("test", logger.Discard())

	var got []string
	s.subscribe(func(v int) { got = append(got, "first") })
	s.subscribe(func(v int) { got = append(got, "second") })

	s.publish(1)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestStream_Unsubscribe(t *testing.T) {
	s := newStream[int]("test", logger.Discard())

	var a, b int
	subA := s.subscribe(func(v int) { a += v })
	s.subscribe(func(v int) { b += v })
	assert.Equal(t, 2, s.len())

	subA.Unsubscribe()
	subA.Unsubscribe()
	assert.Equal(t, 1, s.len())

	s.publish(5)
	assert.Equal(t, 0, a)
	assert.Equal(t, 5, b)
}

func TestStream_PanickingSubscriberIsSkipped(t *testing.T) {
	s := newStream[string]("test", logger.Discard())

	var got []string
	s.subscribe(func(v string) { panic("boom") })
	s.subscribe(func(v string) { got = append(got, v) })

	assert.NotPanics(t, func() { s.publish("EUR") })
	assert.Equal(t, []string{"EUR"}, got)
}

func TestStream_UnsubscribeDuringPublish(t *testing.T) {
	s := newStream[int]("test", logger.Discard())

	calls := 0
	var sub *Subscription
	sub = s.subscribe(func(int) {
		calls++
		sub.Unsubscribe()
	})

	s.publish(1)
	s.publish(2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.len())
}

func TestSubscription_IDsAreUnique(t *testing.T) {
	s := newStream[int]("test", logger.Discard())

	first := s.subscribe(func(int) {})
	second := s.subscribe(func(int) {})
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Len(t, first.ID(), 36)
}
