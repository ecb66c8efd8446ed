package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"", "dev", "local", "prod"} {
		l, err := New(env, "")
		if err != nil {
			t.Errorf("env %q: %v", env, err)
			continue
		}
		_ = l.Sync()
	}

	if _, err := New("staging", ""); err == nil {
		t.Error("expected error for unknown environment")
	}
	if _, err := New("dev", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}

	l, err := New("prod", "warn")
	if err != nil {
		t.Fatal(err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
}

func TestContextRoundTrip(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext must never return nil")
	}
	l := zap.NewExample()
	if got := FromContext(ContextWithLogger(context.Background(), l)); got != l {
		t.Error("logger not carried by context")
	}
}
