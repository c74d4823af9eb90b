package portal

import (
	"context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"testing"
)

// TestLocalBase assures that publishing over the local Base reaches
// subscriptions from other portals on the same Base.
func TestLocalBase(t *testing.T) {
	var wg sync.WaitGroup
	base := NewLocalBase(zap.New(zapcore.NewNopCore()))
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	openDone := make(chan struct{})
	go func() {
		defer close(openDone)
		_ = base.Open(timeout)
	}()
	type groceries struct {
		Item string `json:"item"`
	}
	subPortal := base.NewPortal("kitchen")
	pubPortal := base.NewPortal("hallway")
	newsletter := Subscribe[groceries](timeout, subPortal, "kinhub/test/groceries")
	// Publish.
	wg.Add(1)
	go func() {
		defer wg.Done()
		pubPortal.Publish(timeout, "kinhub/test/groceries", groceries{Item: "milk"})
	}()
	// Await forwarded.
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-timeout.Done():
			t.Error("timeout while waiting for message")
		case got := <-newsletter.Receive:
			assert.Equal(t, groceries{Item: "milk"}, got.Payload, "should forward the published payload")
		}
	}()
	wg.Wait()
	cancel()
	<-openDone
}

// TestLocalBaseNoSubscribers assures that publishing without subscribers does
// not fail.
func TestLocalBaseNoSubscribers(t *testing.T) {
	base := NewLocalBase(zap.New(zapcore.NewNopCore()))
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	p := base.NewPortal("hallway")
	assert.NotPanics(t, func() {
		p.Publish(timeout, "kinhub/test/groceries", 123)
	}, "should not fail")
}
