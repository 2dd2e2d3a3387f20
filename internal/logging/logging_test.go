package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNopHandler(t *testing.T) {
	h := nopHandler{}
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Error("nopHandler.Enabled returned true")
	}
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("Handle: %v", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.Int("k", 1)}).(nopHandler); !ok {
		t.Error("WithAttrs did not return nopHandler")
	}
	if _, ok := h.WithGroup("g").(nopHandler); !ok {
		t.Error("WithGroup did not return nopHandler")
	}
}

func TestSetAndRestore(t *testing.T) {
	t.Cleanup(func() { Set(nil) })

	var buf bytes.Buffer
	Set(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	L().Info("layer loaded", "layer", "organs")
	if !strings.Contains(buf.String(), "layer=organs") {
		t.Errorf("output = %q", buf.String())
	}

	Set(nil)
	buf.Reset()
	L().Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("nil logger still writes: %q", buf.String())
	}
}
