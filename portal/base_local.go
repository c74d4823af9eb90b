package portal

import (
	"context"
	"github.com/eclipse/paho.golang/paho"
	"go.uber.org/zap"
	"sync"
)

// localBroker dispatches published messages directly to registered handlers
// without an external MQTT server. It implements both the router side and the
// publisher side.
type localBroker struct {
	// handlers holds the registered paho.MessageHandler by topic.
	handlers map[string]paho.MessageHandler
	// handlersMutex locks handlers.
	handlersMutex sync.RWMutex
}

func newLocalBroker() *localBroker {
	return &localBroker{
		handlers: make(map[string]paho.MessageHandler),
	}
}

func (b *localBroker) RegisterHandler(topic string, handler paho.MessageHandler) {
	b.handlersMutex.Lock()
	defer b.handlersMutex.Unlock()
	b.handlers[topic] = handler
}

func (b *localBroker) UnregisterHandler(topic string) {
	b.handlersMutex.Lock()
	defer b.handlersMutex.Unlock()
	delete(b.handlers, topic)
}

// Publish dispatches the given paho.Publish to the handler registered for its
// topic. Messages for topics without subscribers are dropped like an MQTT
// server would do.
func (b *localBroker) Publish(_ context.Context, publish *paho.Publish) (*paho.PublishResponse, error) {
	b.handlersMutex.RLock()
	handler, ok := b.handlers[publish.Topic]
	b.handlersMutex.RUnlock()
	if ok {
		go handler(publish)
	}
	return nil, nil
}

// localBase implements Base fully in-process.
type localBase struct {
	logger *zap.Logger
	// broker dispatches all published messages.
	broker *localBroker
	// router multiplexes subscriptions like with the MQTT-backed Base.
	router *router
}

// NewLocalBase creates a Base that runs fully in-process without an external
// MQTT server. Subscribing and publishing behave like with NewBase but messages
// never leave the process. This is meant for setups without connected household
// devices.
func NewLocalBase(logger *zap.Logger) Base {
	broker := newLocalBroker()
	return &localBase{
		logger: logger,
		broker: broker,
		router: newRouter(logger, broker),
	}
}

// Open blocks until the given context.Context is done. No connection handling
// is needed for the local Base.
func (b *localBase) Open(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// NewPortal creates a new Portal on the local broker.
func (b *localBase) NewPortal(name string) Portal {
	return &portal{
		logger:    b.logger.Named(name),
		router:    b.router,
		publisher: b.broker,
	}
}
