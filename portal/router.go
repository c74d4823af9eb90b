package portal

import (
	"context"
	"github.com/eclipse/paho.golang/paho"
	"github.com/kinhub/kinhub-server/errors"
	"github.com/kinhub/kinhub-server/event"
	"go.uber.org/zap"
	"sync"
)

// mqttRouter abstracts paho.Router with only stuff that is needed for router.
type mqttRouter interface {
	RegisterHandler(topic string, handler paho.MessageHandler)
	UnregisterHandler(topic string)
}

// subscriber holds the forward channel of a single subscription along with the
// lifetime context.Context that ends it.
type subscriber struct {
	lifetime context.Context
	forward  chan<- event.Event[any]
}

// topicSubscribers are all subscribers that share the registered handler of a
// topic.
type topicSubscribers struct {
	// subscribers holds all active subscribers.
	subscribers map[*subscriber]struct{}
	// m locks subscribers.
	m sync.RWMutex
}

// messageHandler returns the paho.MessageHandler to register for the topic. It
// fans each received message out to all current subscribers and returns when
// every one of them has either received it or run out of lifetime.
func (t *topicSubscribers) messageHandler() paho.MessageHandler {
	return func(publish *paho.Publish) {
		var allForwarded sync.WaitGroup
		t.m.RLock()
		for sub := range t.subscribers {
			allForwarded.Add(1)
			go func(sub *subscriber) {
				defer allForwarded.Done()
				select {
				case <-sub.lifetime.Done():
				case sub.forward <- event.Event[any]{Publish: publish}:
				}
			}(sub)
		}
		t.m.RUnlock()
		allForwarded.Wait()
	}
}

// router multiplexes subscriptions over a single registered handler per topic.
type router struct {
	logger *zap.Logger
	// mqtt is the actual router that performs the topic matching.
	mqtt mqttRouter
	// subscribersByTopic holds the subscribers of each topic with at least one
	// active subscription.
	subscribersByTopic map[Topic]*topicSubscribers
	// subscribersByTopicMutex locks subscribersByTopic.
	subscribersByTopicMutex sync.Mutex
}

func newRouter(logger *zap.Logger, mqtt mqttRouter) *router {
	return &router{
		logger:             logger,
		mqtt:               mqtt,
		subscribersByTopic: make(map[Topic]*topicSubscribers),
	}
}

// subscribe for the given Topic and forward messages to the given channel until
// the context.Context is done. The first subscriber of a topic registers the
// shared handler with the MQTT router.
func (router *router) subscribe(lifetime context.Context, topic Topic, forward chan<- event.Event[any]) {
	router.subscribersByTopicMutex.Lock()
	defer router.subscribersByTopicMutex.Unlock()
	subscribers, ok := router.subscribersByTopic[topic]
	if !ok {
		subscribers = &topicSubscribers{subscribers: make(map[*subscriber]struct{})}
		router.subscribersByTopic[topic] = subscribers
		router.mqtt.RegisterHandler(string(topic), subscribers.messageHandler())
		router.logger.Debug("subscribed to topic", zap.Any("topic", topic))
	}
	sub := &subscriber{
		lifetime: lifetime,
		forward:  forward,
	}
	subscribers.m.Lock()
	subscribers.subscribers[sub] = struct{}{}
	subscribers.m.Unlock()
	// Unsubscribe when lifetime done.
	go func() {
		<-lifetime.Done()
		router.unsubscribe(topic, sub)
	}()
}

// unsubscribe the given subscriber from the Topic. The last subscriber of a
// topic unregisters the shared handler and drops the topic entry so that a
// later subscribe starts over. Only router should call this!
func (router *router) unsubscribe(topic Topic, sub *subscriber) {
	router.subscribersByTopicMutex.Lock()
	defer router.subscribersByTopicMutex.Unlock()
	subscribers, ok := router.subscribersByTopic[topic]
	if !ok {
		errors.Log(router.logger, errors.NewInternalError("unsubscribe from topic without subscribers",
			errors.Details{"topic": topic}))
		return
	}
	subscribers.m.Lock()
	defer subscribers.m.Unlock()
	if _, ok := subscribers.subscribers[sub]; !ok {
		errors.Log(router.logger, errors.NewInternalError("unsubscribe with unknown subscriber for topic",
			errors.Details{"topic": topic}))
		return
	}
	delete(subscribers.subscribers, sub)
	if len(subscribers.subscribers) > 0 {
		return
	}
	// The last subscriber is gone.
	delete(router.subscribersByTopic, topic)
	router.mqtt.UnregisterHandler(string(topic))
	router.logger.Debug("unsubscribed from topic", zap.Any("topic", topic))
}
