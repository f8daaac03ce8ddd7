package main

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }

func (doneToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

type message struct {
	paho.Message
	topic   string
	payload []byte
}

func (m message) Topic() string   { return m.topic }
func (m message) Payload() []byte { return m.payload }

// nopClient accepts every operation and routes delivered messages to subscribed handlers.
type nopClient struct {
	paho.Client

	mu       sync.Mutex
	handlers map[string]paho.MessageHandler
}

func newNopClient() *nopClient {
	return &nopClient{handlers: map[string]paho.MessageHandler{}}
}

func (c *nopClient) IsConnectionOpen() bool { return true }

func (c *nopClient) Publish(string, byte, bool, interface{}) paho.Token {
	return doneToken{}
}

func (c *nopClient) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
	return doneToken{}
}

func (c *nopClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	return doneToken{}
}

func (c *nopClient) deliver(topic, payload string) {
	c.mu.Lock()
	handler := c.handlers[topic]
	c.mu.Unlock()

	if handler != nil {
		handler(c, message{topic: topic, payload: []byte(payload)})
	}
}
