package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"elementd/internal/events"
	"elementd/pkg/types"
)

func markdown(src string) types.ElementContent {
	return types.ElementContent{Primary: types.PayloadSource{Type: types.SourceInline, MediaType: "text/markdown", Source: src}}
}

func newTestManagers(t *testing.T) (*Manager, *events.Manager, *MemoryPublisher) {
	t.Helper()
	cfg := events.DefaultManagerConfig()
	cfg.ManualFlush = true
	em := events.NewManager(cfg)
	pub := NewMemoryPublisher()
	lm := NewWithConfig(em, ManagerConfig{Publisher: pub})
	t.Cleanup(func() {
		lm.Destroy()
		em.Destroy()
	})
	return lm, em, pub
}

func activeElement(t *testing.T, lm *Manager, id string) types.Element {
	t.Helper()
	el, err := lm.CreateElement(id, "markdown", markdown("# "+id), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := lm.RegisterElement(el); err != nil {
		t.Fatalf("register: %v", err)
	}
	if ok, err := lm.ActivateElement(id); !ok || err != nil {
		t.Fatalf("activate ok=%v err=%v", ok, err)
	}
	return el
}

func mustState(t *testing.T, lm *Manager, id string, want State) {
	t.Helper()
	if got, _ := lm.State(id); got != want {
		t.Fatalf("state(%s)=%q want %q", id, got, want)
	}
}

func TestLifecycle_HappyPathTransitions(t *testing.T) {
	lm, em, pub := newTestManagers(t)
	activeElement(t, lm, "e1")
	mustState(t, lm, "e1", StateActive)
	if _, ok := em.Element("e1"); !ok {
		t.Fatalf("element not registered with the event manager")
	}
	var got []string
	for _, e := range pub.Events() {
		got = append(got, string(e.PreviousState)+">"+string(e.NewState))
	}
	want := []string{">created", "created>registered", "registered>active"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("transitions (-want +got):\n%s", diff)
	}
}

func TestLifecycle_RegisterIsNoopWhenRegisteredOrActive(t *testing.T) {
	lm, _, pub := newTestManagers(t)
	el := activeElement(t, lm, "e1")
	before := len(pub.Events())
	if err := lm.RegisterElement(el); err != nil {
		t.Fatalf("register: %v", err)
	}
	mustState(t, lm, "e1", StateActive)
	if len(pub.Events()) != before {
		t.Fatalf("no-op register emitted events")
	}
}

func TestLifecycle_ActivateAndSuspendUnknown(t *testing.T) {
	lm, _, _ := newTestManagers(t)
	if ok, _ := lm.ActivateElement("ghost"); ok {
		t.Fatalf("activate unknown should be false")
	}
	if ok, _ := lm.SuspendElement("ghost"); ok {
		t.Fatalf("suspend unknown should be false")
	}
	if _, ok := lm.State("ghost"); ok {
		t.Fatalf("unknown id gained a state")
	}
}

func TestLifecycle_ActivateActiveIsNoop(t *testing.T) {
	lm, _, pub := newTestManagers(t)
	activeElement(t, lm, "e1")
	before := len(pub.Events())
	if ok, _ := lm.ActivateElement("e1"); !ok {
		t.Fatalf("activate active should be true")
	}
	if len(pub.Events()) != before {
		t.Fatalf("no-op activate emitted events")
	}
}

func TestLifecycle_UpdateContentActiveElement(t *testing.T) {
	lm, em, pub := newTestManagers(t)
	activeElement(t, lm, "e1")
	res, err := lm.UpdateElementContent(context.Background(), "e1", markdown("# v2"), UpdateOptions{Priority: types.PriorityHigh, PersistChange: true})
	if err != nil || !res.Success {
		t.Fatalf("update res=%+v err=%v", res, err)
	}
	mustState(t, lm, "e1", StateActive)
	evs := pub.Events()
	if evs[len(evs)-2].EventType != EventUpdating || evs[len(evs)-1].EventType != EventUpdated {
		t.Fatalf("tail events=%+v", evs[len(evs)-2:])
	}
	em.Tick(context.Background())
	h := em.History("e1", 0)
	if len(h) != 1 || h[0].Event.EventType != types.EventUpdatePayload || !h[0].Event.PersistChange {
		t.Fatalf("history=%+v", h)
	}
	if h[0].Event.Metadata.Priority != types.PriorityHigh || h[0].Event.Metadata.Source != "lifecycle" {
		t.Fatalf("metadata=%+v", h[0].Event.Metadata)
	}
}

func TestLifecycle_UpdateContentSuspendedIsRefused(t *testing.T) {
	lm, em, pub := newTestManagers(t)
	activeElement(t, lm, "e1")
	if ok, _ := lm.SuspendElement("e1"); !ok {
		t.Fatalf("suspend failed")
	}
	before := len(pub.Events())
	res, err := lm.UpdateElementContent(context.Background(), "e1", markdown("# v2"), UpdateOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Success || res.Code != types.SendNotAvailable || len(res.Errors) != 1 || res.Errors[0] != "Element e1 not available for updates" {
		t.Fatalf("res=%+v", res)
	}
	mustState(t, lm, "e1", StateSuspended)
	if len(pub.Events()) != before {
		t.Fatalf("refused update emitted events")
	}
	if em.Queue().Size() != 0 {
		t.Fatalf("refused update reached the queue")
	}
}

func TestLifecycle_UpdateContentUnknownAndDestroyed(t *testing.T) {
	lm, _, _ := newTestManagers(t)
	res, _ := lm.UpdateElementContent(context.Background(), "ghost", markdown("x"), UpdateOptions{})
	if res.Success || res.Code != types.SendNotAvailable {
		t.Fatalf("unknown res=%+v", res)
	}
	activeElement(t, lm, "e1")
	if ok, _ := lm.DestroyElement("e1"); !ok {
		t.Fatalf("destroy failed")
	}
	res, _ = lm.UpdateElementContent(context.Background(), "e1", markdown("x"), UpdateOptions{})
	if res.Success || res.Code != types.SendNotAvailable {
		t.Fatalf("destroyed res=%+v", res)
	}
	mustState(t, lm, "e1", StateDestroyed)
}

func TestLifecycle_UpdateContentRejectedGoesToError(t *testing.T) {
	lm, _, pub := newTestManagers(t)
	activeElement(t, lm, "e1")
	res, err := lm.UpdateElementContent(context.Background(), "e1", markdown("x"), UpdateOptions{Priority: "urgent"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Success || res.Code != types.SendUnknownPriority {
		t.Fatalf("res=%+v", res)
	}
	mustState(t, lm, "e1", StateError)
	evs := pub.Events()
	if last := evs[len(evs)-1]; last.EventType != EventFailed || last.PreviousState != StateUpdating {
		t.Fatalf("last event=%+v", last)
	}
	// error state still accepts updates
	if res, _ := lm.UpdateElementContent(context.Background(), "e1", markdown("y"), UpdateOptions{}); !res.Success {
		t.Fatalf("retry res=%+v", res)
	}
	mustState(t, lm, "e1", StateActive)
}

type failingEvents struct {
	EventManager
	err error
}

func (f failingEvents) SendEvent(context.Context, types.ElementEvent) (types.SendEventResponse, error) {
	return types.SendEventResponse{}, f.err
}

func TestLifecycle_UpdateContentSendErrorNeverEscapes(t *testing.T) {
	_, em, _ := newTestManagers(t)
	boom := errors.New("boom")
	lm := New(failingEvents{EventManager: em, err: boom})
	defer lm.Destroy()
	activeElement(t, lm, "e1")
	res, err := lm.UpdateElementContent(context.Background(), "e1", markdown("x"), UpdateOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Success || res.Code != types.SendFailed || res.Errors[0] != "boom" {
		t.Fatalf("res=%+v", res)
	}
	mustState(t, lm, "e1", StateError)
}

func TestLifecycle_UpdatePropertiesBypassesGate(t *testing.T) {
	lm, em, _ := newTestManagers(t)
	activeElement(t, lm, "e1")
	_, _ = lm.SuspendElement("e1")
	res, err := lm.UpdateElementProperties(context.Background(), "e1", map[string]any{"title": "t"}, UpdateOptions{})
	if err != nil || !res.Success {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	mustState(t, lm, "e1", StateSuspended)
	em.Tick(context.Background())
	el, _ := em.Element("e1")
	if el.Metadata["title"] != "t" {
		t.Fatalf("metadata=%v", el.Metadata)
	}
}

func TestLifecycle_DestroyElement(t *testing.T) {
	lm, em, _ := newTestManagers(t)
	activeElement(t, lm, "e1")
	calls := 0
	if _, err := lm.SubscribeToElementUpdates("e1", func(events.Notification) { calls++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if ok, _ := lm.DestroyElement("e1"); !ok {
		t.Fatalf("destroy failed")
	}
	if ok, _ := lm.DestroyElement("e1"); ok {
		t.Fatalf("second destroy should be false")
	}
	if _, ok := em.Element("e1"); ok {
		t.Fatalf("element still registered")
	}
	if ok, _ := lm.ActivateElement("e1"); ok {
		t.Fatalf("destroyed element reactivated")
	}
	// a fresh registration under the same id must not reach the old subscriber
	_ = em.RegisterElement(types.Element{ID: "e1"})
	if calls != 0 {
		t.Fatalf("dropped subscriber called %d times", calls)
	}
}

func TestLifecycle_SubscribeToElementUpdates(t *testing.T) {
	lm, em, _ := newTestManagers(t)
	activeElement(t, lm, "e1")
	var got []events.NotificationKind
	unsub, err := lm.SubscribeToElementUpdates("e1", func(n events.Notification) { got = append(got, n.Kind) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_, _ = lm.UpdateElementProperties(context.Background(), "e1", map[string]any{"a": 1}, UpdateOptions{})
	em.Tick(context.Background())
	unsub()
	_, _ = lm.UpdateElementProperties(context.Background(), "e1", map[string]any{"a": 2}, UpdateOptions{})
	em.Tick(context.Background())
	if len(got) != 1 || got[0] != events.NotifyEvent {
		t.Fatalf("notifications=%v", got)
	}
}

func TestLifecycle_SubscribersAndPanics(t *testing.T) {
	lm, _, _ := newTestManagers(t)
	_, _ = lm.Subscribe(func(Event) { panic("boom") })
	var seen []Event
	_, _ = lm.Subscribe(func(e Event) { seen = append(seen, e) })
	activeElement(t, lm, "e1")
	if len(seen) != 3 {
		t.Fatalf("seen=%+v", seen)
	}
	if seen[2].ElementID != "e1" || seen[2].EventType != EventActivated || seen[2].Timestamp.IsZero() {
		t.Fatalf("event=%+v", seen[2])
	}
}

func TestLifecycle_SubscribersRunInRegistrationOrder(t *testing.T) {
	lm, _, _ := newTestManagers(t)
	var order []string
	for _, name := range []string{"d", "b", "a", "c"} {
		name := name
		_, _ = lm.Subscribe(func(e Event) {
			if e.EventType == EventActivated {
				order = append(order, name)
			}
		})
	}
	activeElement(t, lm, "e1")
	if diff := cmp.Diff([]string{"d", "b", "a", "c"}, order); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestLifecycle_ProjectionsAndStats(t *testing.T) {
	lm, _, _ := newTestManagers(t)
	activeElement(t, lm, "b")
	activeElement(t, lm, "a")
	_, _ = lm.CreateElement("c", "image", markdown("x"), nil)
	_, _ = lm.SuspendElement("b")
	if diff := cmp.Diff([]string{"a"}, lm.ElementsByState(StateActive)); diff != "" {
		t.Fatalf("active (-want +got):\n%s", diff)
	}
	st := lm.Stats()
	if st.Total != 3 || st.ByState[StateActive] != 1 || st.ByState[StateSuspended] != 1 || st.ByState[StateCreated] != 1 || st.ByState[StateError] != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestLifecycle_DestroyRejectsFurtherCalls(t *testing.T) {
	lm, _, _ := newTestManagers(t)
	activeElement(t, lm, "e1")
	lm.Destroy()
	if _, err := lm.CreateElement("x", "k", markdown("x"), nil); !IsDestroyed(err) {
		t.Fatalf("create err=%v", err)
	}
	if err := lm.RegisterElement(types.Element{ID: "x"}); !IsDestroyed(err) {
		t.Fatalf("register err=%v", err)
	}
	if _, err := lm.ActivateElement("e1"); !IsDestroyed(err) {
		t.Fatalf("activate err=%v", err)
	}
	if _, err := lm.UpdateElementContent(context.Background(), "e1", markdown("x"), UpdateOptions{}); !IsDestroyed(err) {
		t.Fatalf("update err=%v", err)
	}
	if _, err := lm.UpdateElementProperties(context.Background(), "e1", nil, UpdateOptions{}); !IsDestroyed(err) {
		t.Fatalf("props err=%v", err)
	}
	if _, err := lm.DestroyElement("e1"); !IsDestroyed(err) {
		t.Fatalf("destroy element err=%v", err)
	}
	if _, err := lm.Subscribe(func(Event) {}); !IsDestroyed(err) {
		t.Fatalf("subscribe err=%v", err)
	}
	if st := lm.Stats(); st.Total != 0 {
		t.Fatalf("state not cleared: %+v", st)
	}
}
