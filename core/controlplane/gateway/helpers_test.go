package gateway

import (
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/cordum/stageflow/core/catalog"
	"github.com/cordum/stageflow/core/configsvc"
	"github.com/cordum/stageflow/core/infra/bus"
	"github.com/cordum/stageflow/core/infra/locks"
	"github.com/cordum/stageflow/core/infra/redisutil"
	wf "github.com/cordum/stageflow/core/workflow"
)

type stubBus struct {
	mu        sync.Mutex
	published []publishedMessage
	inner     *bus.MemoryBus
}

type publishedMessage struct {
	subject string
	event   *bus.Event
}

func newStubBus() *stubBus {
	return &stubBus{inner: bus.NewMemoryBus()}
}

func (b *stubBus) Publish(subject string, evt *bus.Event) error {
	b.mu.Lock()
	b.published = append(b.published, publishedMessage{subject: subject, event: evt})
	b.mu.Unlock()
	return b.inner.Publish(subject, evt)
}

func (b *stubBus) Subscribe(subject, queue string, handler func(*bus.Event) error) error {
	return b.inner.Subscribe(subject, queue, handler)
}

func (b *stubBus) subjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.published))
	for _, m := range b.published {
		out = append(out, m.subject)
	}
	return out
}

func (b *stubBus) count(subject string) int {
	n := 0
	for _, s := range b.subjects() {
		if s == subject {
			n++
		}
	}
	return n
}

type recordingConfigMetrics struct {
	mu       sync.Mutex
	saved    map[string]int
	previews map[string]int
	observed int
}

func (m *recordingConfigMetrics) IncConfigSaved(app string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]int{}
	}
	m.saved[app]++
}

func (m *recordingConfigMetrics) ObserveSaveDuration(float64) {
	m.mu.Lock()
	m.observed++
	m.mu.Unlock()
}

func (m *recordingConfigMetrics) IncPreview(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.previews == nil {
		m.previews = map[string]int{}
	}
	m.previews[status]++
}

func newTestGateway(t *testing.T) (*server, *stubBus, *recordingConfigMetrics) {
	t.Helper()

	srv := miniredis.RunT(t)
	client, err := redisutil.NewClient("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	b := newStubBus()
	m := &recordingConfigMetrics{}
	s := newServer(serverDeps{
		bus:           b,
		redis:         client,
		static:        catalog.NewStaticSource(catalog.Sample()),
		configSvc:     configsvc.NewWithClient(client),
		configStore:   wf.NewRedisConfigStoreWithClient(client),
		saveLocks:     locks.NewRedisLocker(client, time.Second, 100*time.Millisecond),
		configMetrics: m,
	})
	return s, b, m
}
