package logging

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"testing"
	"time"
)

// timeout for async tests.
const timeout = 3 * time.Second

func TestNoPublishOmitCoreForward(t *testing.T) {
	lifetime, cancel := context.WithCancel(context.Background())
	defer cancel()
	core, entries := NewNoPublishOmitCore(lifetime)
	logger := zap.New(core).Named("visit")
	logger.Info("hello world", zap.String("note", "bring cookies"))
	select {
	case entry := <-entries:
		assert.Equal(t, "hello world", entry.Message, "should forward the message")
		assert.Equal(t, zapcore.InfoLevel, entry.Level, "should forward the level")
		assert.Equal(t, "visit", entry.LoggerName, "should forward the logger name")
		require.Contains(t, entry.Fields, "note", "should forward fields")
		assert.Equal(t, "bring cookies", entry.Fields["note"], "should forward field values")
	case <-time.After(timeout):
		t.Fatal("timeout while waiting for log entry")
	}
}

func TestNoPublishOmitCoreForwardWithFields(t *testing.T) {
	lifetime, cancel := context.WithCancel(context.Background())
	defer cancel()
	core, entries := NewNoPublishOmitCore(lifetime)
	logger := zap.New(core).With(zap.String("household", "meow"))
	logger.Warn("milk is empty")
	select {
	case entry := <-entries:
		assert.Equal(t, zapcore.WarnLevel, entry.Level, "should forward the level")
		require.Contains(t, entry.Fields, "household", "should forward fields from with")
		assert.Equal(t, "meow", entry.Fields["household"], "should forward field values from with")
	case <-time.After(timeout):
		t.Fatal("timeout while waiting for log entry")
	}
}

func TestNoPublishOmitCoreOmit(t *testing.T) {
	lifetime, cancel := context.WithCancel(context.Background())
	defer cancel()
	core, entries := NewNoPublishOmitCore(lifetime)
	logger := OmitPublish(zap.New(core))
	logger.Info("do not tell")
	select {
	case entry := <-entries:
		t.Fatalf("should not forward marked entry but got: %v", entry)
	case <-time.After(100 * time.Millisecond):
	}
}
