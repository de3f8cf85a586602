package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"elementd/internal/config"
	"elementd/internal/content"
	"elementd/internal/events"
	"elementd/internal/lifecycle"
	"elementd/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := ConfigFrom(config.Default(), nil)
	cfg.Events.ManualFlush = true
	s := New(cfg)
	t.Cleanup(s.Close)
	return s
}

func noteElement(id string) types.Element {
	return types.Element{
		ID:   id,
		Kind: "markdown",
		Content: types.ElementContent{
			Primary: types.PayloadSource{Type: types.SourceInline, MediaType: "text/markdown", Source: "# " + id},
			Alternatives: []types.PayloadSource{
				{Type: types.SourceInline, MediaType: "text/html", Source: "<h1>" + id + "</h1>"},
			},
		},
	}
}

func statusCode(err error) int {
	var he interface{ StatusCode() int }
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return 0
}

func TestSeedActivatesAndMarksReady(t *testing.T) {
	s := newTestService(t)
	if s.Ready() {
		t.Fatalf("ready before seed")
	}
	if err := s.Seed(context.Background(), []types.Element{noteElement("a"), noteElement("b")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !s.Ready() {
		t.Fatalf("not ready after seed")
	}
	var got []string
	for _, es := range s.ListElements() {
		got = append(got, es.Element.ID+"="+es.State)
	}
	if diff := cmp.Diff([]string{"a=active", "b=active"}, got); diff != "" {
		t.Fatalf("elements (-want +got):\n%s", diff)
	}
}

func TestCreateElementErrors(t *testing.T) {
	s := newTestService(t)
	if _, err := s.CreateElement(context.Background(), noteElement("a"), false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if st, _ := s.GetElement("a"); st.State != string(lifecycle.StateRegistered) {
		t.Fatalf("state=%q", st.State)
	}
	_, err := s.CreateElement(context.Background(), noteElement("a"), true)
	if !errors.Is(err, ErrElementExists) || statusCode(err) != http.StatusConflict {
		t.Fatalf("duplicate err=%v", err)
	}
	bad := noteElement("b")
	bad.Content.Primary.Source = ""
	_, err = s.CreateElement(context.Background(), bad, true)
	var ve *events.ValidationError
	if !errors.As(err, &ve) || statusCode(err) != http.StatusBadRequest {
		t.Fatalf("invalid err=%v", err)
	}
}

func TestMissingElementIsNotFound(t *testing.T) {
	s := newTestService(t)
	if _, err := s.GetElement("x"); !errors.Is(err, events.ErrElementNotFound) {
		t.Fatalf("get err=%v", err)
	}
	if err := s.DeleteElement("x"); !errors.Is(err, events.ErrElementNotFound) {
		t.Fatalf("delete err=%v", err)
	}
	if _, err := s.ActivateElement("x"); !errors.Is(err, events.ErrElementNotFound) {
		t.Fatalf("activate err=%v", err)
	}
	if _, err := s.History("x", 0); !errors.Is(err, events.ErrElementNotFound) {
		t.Fatalf("history err=%v", err)
	}
	if _, err := s.UpdateContent(context.Background(), "x", types.UpdateContentRequest{}); !errors.Is(err, events.ErrElementNotFound) {
		t.Fatalf("update err=%v", err)
	}
}

func TestUpdateContentRespectsSuspension(t *testing.T) {
	s := newTestService(t)
	_ = s.Seed(context.Background(), []types.Element{noteElement("a")})
	if _, err := s.SuspendElement("a"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	res, err := s.UpdateContent(context.Background(), "a", types.UpdateContentRequest{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Success || res.Code != types.SendNotAvailable {
		t.Fatalf("res=%+v", res)
	}
	if st, _ := s.GetElement("a"); st.State != "suspended" {
		t.Fatalf("state=%s", st.State)
	}
}

func TestUpdateContentCarriesMergedContent(t *testing.T) {
	s := newTestService(t)
	_ = s.Seed(context.Background(), []types.Element{noteElement("a")})
	primary := types.PayloadSource{Type: types.SourceInline, MediaType: "text/markdown", Source: "# v2"}
	res, err := s.UpdateContent(context.Background(), "a", types.UpdateContentRequest{Primary: &primary, PersistChange: true})
	if err != nil || !res.Success {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	s.Events().Tick(context.Background())
	h, _ := s.History("a", 1)
	got, ok := h[0].Event.Data["content"].(types.ElementContent)
	if !ok {
		t.Fatalf("content data=%T", h[0].Event.Data["content"])
	}
	if got.Primary.Source != "# v2" || len(got.Alternatives) != 1 {
		t.Fatalf("merged content=%+v", got)
	}

	bad := types.PayloadSource{Type: types.SourceExternal, MediaType: "image/png"}
	if _, err := s.UpdateContent(context.Background(), "a", types.UpdateContentRequest{Primary: &bad}); statusCode(err) != http.StatusBadRequest {
		t.Fatalf("invalid update err=%v", err)
	}
}

func TestResolveAndNegotiate(t *testing.T) {
	s := newTestService(t)
	_ = s.Seed(context.Background(), []types.Element{noteElement("a")})
	caps := types.Capabilities{Accept: []string{"text/html", "text/markdown;q=0.5"}}
	rc, err := s.ResolveContent(context.Background(), "a", caps)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rc.MediaType != "text/html" || string(rc.Data) != "<h1>a</h1>" || rc.Metadata.FromCache {
		t.Fatalf("content=%+v", rc)
	}
	if rc, _ = s.ResolveContent(context.Background(), "a", caps); !rc.Metadata.FromCache {
		t.Fatalf("second resolve not cached")
	}
	neg, err := s.Negotiate("a", caps)
	if err != nil || neg.Selected == nil || neg.Selected.MediaType != "text/html" || len(neg.Candidates) != 2 {
		t.Fatalf("negotiate=%+v err=%v", neg, err)
	}
	_, err = s.ResolveContent(context.Background(), "a", types.Capabilities{Accept: []string{"image/png"}})
	if !errors.Is(err, content.ErrNoSuitableRepresentation) {
		t.Fatalf("no match err=%v", err)
	}
	if _, err := s.ResolveContent(context.Background(), "a", types.Capabilities{}); statusCode(err) != http.StatusBadRequest {
		t.Fatalf("empty accept err=%v", err)
	}
	st := s.Status()
	if st.CacheHits != 1 || st.CacheMisses != 1 || st.ResolveFailures != 1 || st.Transport != "disconnected" {
		t.Fatalf("status=%+v", st)
	}
}

func TestStatusCountsStates(t *testing.T) {
	s := newTestService(t)
	_ = s.Seed(context.Background(), []types.Element{noteElement("a"), noteElement("b")})
	_, _ = s.SuspendElement("b")
	st := s.Status()
	if st.Elements != 2 || st.States["active"] != 1 || st.States["suspended"] != 1 || st.MaxQueueSize != config.DefaultQueueMaxSize {
		t.Fatalf("status=%+v", st)
	}
}

func TestCloseRejectsWork(t *testing.T) {
	s := newTestService(t)
	_ = s.Seed(context.Background(), []types.Element{noteElement("a")})
	s.Close()
	if s.Ready() {
		t.Fatalf("ready after close")
	}
	if _, err := s.SendEvent(context.Background(), types.ElementEvent{ElementID: "a", EventType: types.EventUpdateStyle}); !events.IsDestroyed(err) {
		t.Fatalf("send err=%v", err)
	}
	if _, err := s.CreateElement(context.Background(), noteElement("b"), true); !lifecycle.IsDestroyed(err) {
		t.Fatalf("create err=%v", err)
	}
}
