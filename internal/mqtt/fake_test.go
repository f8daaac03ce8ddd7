package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/cover2mqtt/internal/shutter"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} {
	return t.done
}

func (t *fakeToken) Error() error {
	return t.err
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// fakeClient records publications and routes delivered messages to subscribed handlers.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	published    []published
	handlers     map[string]paho.MessageHandler
	unsubscribed []string
	publishErr   error
	pending      chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]paho.MessageHandler{}}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p string
	switch v := payload.(type) {
	case string:
		p = v
	case []byte:
		p = string(v)
	default:
		p = fmt.Sprint(v)
	}
	c.published = append(c.published, published{topic: topic, qos: qos, retained: retained, payload: p})

	if c.pending != nil {
		return &fakeToken{done: c.pending}
	}
	return newFakeToken(c.publishErr)
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
	return newFakeToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.handlers, topic)
		c.unsubscribed = append(c.unsubscribed, topic)
	}
	return newFakeToken(nil)
}

func (c *fakeClient) deliver(topic, payload string) bool {
	c.mu.Lock()
	handler, ok := c.handlers[topic]
	c.mu.Unlock()

	if ok {
		handler(c, &fakeMessage{topic: topic, payload: []byte(payload)})
	}
	return ok
}

func (c *fakeClient) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[topic]
	return ok
}

func (c *fakeClient) last(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].topic == topic {
			return c.published[i], true
		}
	}
	return published{}, false
}

type fakeShutter struct {
	mu      sync.Mutex
	calls   []string
	handler shutter.ShutterUpdateHandler
	reset   []float64
	known   []shutter.KnownPosition
	actions []shutter.Action
}

func (s *fakeShutter) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeShutter) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeShutter) Name() string           { return "kitchen" }
func (s *fakeShutter) Position() float64      { return 0 }
func (s *fakeShutter) State() shutter.State   { return shutter.ShutterClosedState }
func (s *fakeShutter) Status() shutter.Status { return shutter.Status{State: shutter.ShutterClosedState} }

func (s *fakeShutter) OnUpdate(h shutter.ShutterUpdateHandler) {
	s.handler = h
}

func (s *fakeShutter) Open(context.Context) error {
	s.record("open")
	return nil
}

func (s *fakeShutter) Close(context.Context) error {
	s.record("close")
	return nil
}

func (s *fakeShutter) Stop(context.Context) error {
	s.record("stop")
	return nil
}

func (s *fakeShutter) SetPosition(_ context.Context, position float64) error {
	s.record(fmt.Sprintf("position %.0f", position))
	return nil
}

func (s *fakeShutter) ResetPosition(position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset = append(s.reset, position)
	return nil
}

func (s *fakeShutter) SetKnownPosition(_ context.Context, position float64, confident bool, positionType shutter.PositionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known = append(s.known, shutter.KnownPosition{Position: position, Confident: confident, PositionType: positionType})
	return nil
}

func (s *fakeShutter) SetKnownAction(_ context.Context, action shutter.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
	return nil
}
