package anatomy

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/anatomy/bundle"
	"github.com/gogpu/anatomy/internal/synth"
	"github.com/gogpu/anatomy/stream"
)

func newTestModel(t *testing.T, opts []Option, layers ...synth.Layer) *Model {
	t.Helper()
	ds, err := synth.Build("test", layers...)
	if err != nil {
		t.Fatalf("synth.Build: %v", err)
	}
	b, err := bundle.Load(ds.FS)
	if err != nil {
		t.Fatalf("bundle.Load: %v", err)
	}
	m := New(b, opts...)
	t.Cleanup(func() {
		m.Close()
		b.Close()
	})
	return m
}

func loadAndWait(t *testing.T, m *Model) {
	t.Helper()
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestModelLiver(t *testing.T) {
	m := newTestModel(t, nil, synth.Liver())
	loadAndWait(t, m)

	body := m.Body()
	if !body.Done() || !body.Loaded(bundle.Organs) {
		t.Fatalf("Done = %v, Loaded(organs) = %v", body.Done(), body.Loaded(bundle.Organs))
	}
	if n := body.Colors().Len(); n != 2 {
		t.Errorf("colors = %d, want 2", n)
	}

	body.SetView(128, 128, mgl32.Ident4())
	if _, ok := body.Pick(99, 67); ok {
		t.Error("transparent organs layer was picked")
	}
	if err := body.SetOpacity(bundle.Organs, 1); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		x, y int
		want string
	}{
		{"gallbladder", 99, 67, "gallbladder"},
		{"gallbladder apex", 99, 32, "gallbladder"},
		{"liver", 29, 63, "liver"},
		{"empty space", 64, 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := body.Pick(tt.x, tt.y)
			if ok != (tt.want != "") || got != tt.want {
				t.Errorf("Pick(%d, %d) = %q, %v; want %q", tt.x, tt.y, got, ok, tt.want)
			}
		})
	}

	ref, ok := body.DrawsFor("gallbladder")
	if !ok || ref.Layer != bundle.Organs || ref.Draw.Offset != 300 || ref.Draw.Count != 30 {
		t.Errorf("DrawsFor(gallbladder) = %+v, %v", ref, ok)
	}
}

func TestModelSources(t *testing.T) {
	m := newTestModel(t, []Option{WithCurrentLayer(bundle.Organs)}, synth.Body(1, 1)...)

	var got []string
	for _, src := range m.Sources() {
		got = append(got, src.Name)
	}
	want := []string{"organs", "nervous", "circulatory", "connective", "skeleton", "muscle", "skin"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Sources (-want +got):\n%s", diff)
	}

	if err := m.SetCurrentLayer(bundle.Skin); err != nil {
		t.Fatal(err)
	}
	if first := m.Sources()[0]; first.ID != int(bundle.Skin) {
		t.Errorf("first source = %+v, want skin", first)
	}
	if err := m.SetCurrentLayer(bundle.Layer(9)); !errors.Is(err, bundle.ErrUnknownLayer) {
		t.Errorf("SetCurrentLayer(9) err = %v", err)
	}
	if m.CurrentLayer() != bundle.Skin {
		t.Errorf("CurrentLayer = %v after a rejected change", m.CurrentLayer())
	}
}

func TestModelSourcesSkipsMissingLayers(t *testing.T) {
	m := newTestModel(t, nil, synth.Liver())
	srcs := m.Sources()
	if len(srcs) != 1 || srcs[0].ID != int(bundle.Organs) {
		t.Errorf("Sources = %+v, want organs only", srcs)
	}
}

func TestModelFullBody(t *testing.T) {
	m := newTestModel(t, nil, synth.Body(2, 3)...)
	loadAndWait(t, m)

	body := m.Body()
	for _, l := range bundle.RenderOrder() {
		if !body.Loaded(l) {
			t.Errorf("layer %v not loaded", l)
		}
		if n := len(body.Groups(l)); n != 2 {
			t.Errorf("layer %v groups = %d, want 2", l, n)
		}
	}
	if n := body.Colors().Len(); n != bundle.NumLayers*2*3 {
		t.Errorf("colors = %d, want %d", n, bundle.NumLayers*2*3)
	}
	if stats := m.Textures().CacheStats(); stats.Misses == 0 {
		t.Errorf("texture cache stats = %+v, want loads", stats)
	}
}

func TestModelReloadKeepsColorsUnique(t *testing.T) {
	m := newTestModel(t, nil, synth.Liver())
	loadAndWait(t, m)
	first := m.Body().NextColor()

	loadAndWait(t, m)
	body := m.Body()
	if got := body.NextColor(); got != first+2 {
		t.Errorf("NextColor after reload = %d, want %d", got, first+2)
	}
	// The old colors stay resolvable.
	if e, ok := body.Colors().Lookup(1); !ok || e.Geometry != "liver" {
		t.Errorf("color 1 = %+v, %v", e, ok)
	}
	if body.Colors() == nil || m.Controller().Store().MaxAssigned() != 4 {
		t.Errorf("store max = %d, want 4", m.Controller().Store().MaxAssigned())
	}
}

func TestModelUploaderReceivesGroups(t *testing.T) {
	up := &fakeUploader{}
	m := newTestModel(t, []Option{WithUploader(up)}, synth.Liver())
	loadAndWait(t, m)
	loadAndWait(t, m)

	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.uploaded) != 2 {
		t.Fatalf("uploaded = %d groups, want 2", len(up.uploaded))
	}
	if len(up.forgot) != 1 || up.forgot[0] != up.uploaded[0] {
		t.Errorf("forgot = %v, want the first load's group", up.forgot)
	}
	if _, ok := up.uploaded[1].(*stream.DrawGroup); !ok {
		t.Errorf("upload key = %T, want *stream.DrawGroup", up.uploaded[1])
	}
}

func TestModelCancel(t *testing.T) {
	m := newTestModel(t, nil, synth.Body(1, 1)...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.Cancel()
	if err := m.Wait(); err == nil {
		t.Error("Wait = nil for a cancelled load")
	}
	if m.Controller().Active() {
		t.Error("controller active after Wait")
	}
}

func TestModelReloadIgnoresQueuedDeliveries(t *testing.T) {
	var q stream.RenderQueue
	m := newTestModel(t, []Option{WithStreamOptions(stream.WithDispatcher(&q))}, synth.Liver())
	loadAndWait(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Load(ctx); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if err := m.Wait(); !errors.Is(err, stream.ErrCancelled) {
		t.Fatalf("second Wait = %v, want ErrCancelled", err)
	}

	// The first session's delivery is still queued.
	if n := q.Drain(); n != 1 {
		t.Fatalf("Drain ran %d callbacks, want 1", n)
	}
	body := m.Body()
	if body.Done() || body.Loaded(bundle.Organs) {
		t.Errorf("Done = %v, Loaded(organs) = %v after a cancelled reload", body.Done(), body.Loaded(bundle.Organs))
	}
	if body.Generation() != 2 {
		t.Errorf("Generation = %d, want 2", body.Generation())
	}

	loadAndWait(t, m)
	q.Drain()
	if !body.Done() || !body.Loaded(bundle.Organs) {
		t.Error("third load not applied")
	}
}

func TestModelClose(t *testing.T) {
	ds, err := synth.Build("close", synth.Body(1, 1)...)
	if err != nil {
		t.Fatal(err)
	}
	delete(ds.FS, ds.Manifests[bundle.Skin])
	b, err := bundle.Load(ds.FS)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	m := New(b)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Wait(); err == nil {
		t.Fatal("Wait succeeded with a missing manifest")
	}
	if err := m.Close(); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Close = %v, want the failed layer's fs.ErrNotExist", err)
	}

	m = New(b)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close after cancellation = %v, want nil", err)
	}
}

func TestOpen(t *testing.T) {
	ds, err := synth.Build("disk", synth.Liver())
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := ds.WriteDir(dir); err != nil {
		t.Fatal(err)
	}

	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()
	if m.Bundle().Name != "disk" {
		t.Errorf("bundle name = %q", m.Bundle().Name)
	}
	loadAndWait(t, m)
	if !m.Body().Loaded(bundle.Organs) {
		t.Error("organs not loaded from disk")
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Open of a missing directory succeeded")
	}
}
