package e2e

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"elementd/internal/config"
	"elementd/pkg/types"
)

const noteYAML = `id: note
kind: markdown
content:
  primary:
    type: inline
    mediaType: text/markdown
    source: "# Release notes"
  alternatives:
    - type: inline
      mediaType: text/plain
      source: Release notes
`

func heroYAML(base string) string {
	return fmt.Sprintf(`id: hero
kind: image
content:
  primary:
    type: external
    mediaType: image/jpeg
    uri: %[1]s/hero.jpg
    width: 1600
  alternatives:
    - type: external
      mediaType: image/webp
      uri: %[1]s/hero.webp
      width: 1600
`, base)
}

func TestE2E_SeedAndList(t *testing.T) {
	up := newUpstream(t, nil)
	dir := writeElementsDir(t, map[string]string{"note.yaml": noteYAML, "hero.yml": heroYAML(up.URL), "README.txt": "ignored"})
	srv, _ := newServer(t, dir, nil)

	resp, body := httpGet(t, srv.URL+"/elements", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var list types.ElementsResponse
	decode(t, body, &list)
	var got []string
	for _, st := range list.Elements {
		got = append(got, st.Element.ID+"="+st.State)
	}
	if diff := cmp.Diff([]string{"hero=active", "note=active"}, got); diff != "" {
		t.Fatalf("elements (-want +got):\n%s", diff)
	}

	resp, _ = httpGet(t, srv.URL+"/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz=%d", resp.StatusCode)
	}
}

func TestE2E_ContentNegotiationAndCache(t *testing.T) {
	up := newUpstream(t, map[string][]byte{"/hero.webp": []byte("WEBP"), "/hero.jpg": []byte("JPEG")})
	dir := writeElementsDir(t, map[string]string{"hero.yaml": heroYAML(up.URL)})
	srv, svc := newServer(t, dir, nil)

	accept := map[string]string{"Accept": "image/webp, image/*;q=0.8"}
	resp, body := httpGet(t, srv.URL+"/elements/hero/content?width=800", accept)
	if resp.StatusCode != http.StatusOK || string(body) != "WEBP" {
		t.Fatalf("status=%d body=%q", resp.StatusCode, body)
	}
	if resp.Header.Get("Content-Type") != "image/webp" || resp.Header.Get("X-Cache") != "MISS" {
		t.Fatalf("headers=%v", resp.Header)
	}
	resp, body = httpGet(t, srv.URL+"/elements/hero/content?width=800", accept)
	if resp.Header.Get("X-Cache") != "HIT" || string(body) != "WEBP" {
		t.Fatalf("second fetch headers=%v body=%q", resp.Header, body)
	}
	if n := up.hits.Load(); n != 1 {
		t.Fatalf("upstream hits=%d, want 1", n)
	}

	resp, body = httpGet(t, srv.URL+"/elements/hero/content", map[string]string{"Accept": "image/jpeg"})
	if resp.StatusCode != http.StatusOK || string(body) != "JPEG" {
		t.Fatalf("jpeg status=%d body=%q", resp.StatusCode, body)
	}

	resp, _ = httpGet(t, srv.URL+"/elements/hero/content", map[string]string{"Accept": "text/html"})
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("unmatched accept status=%d", resp.StatusCode)
	}

	st := svc.Status()
	if st.CacheHits != 1 || st.CacheEntries != 2 {
		t.Fatalf("status=%+v", st)
	}
}

func TestE2E_UpstreamFailures(t *testing.T) {
	up := newUpstream(t, map[string][]byte{"/hero.jpg": []byte(strings.Repeat("x", 64))})
	dir := writeElementsDir(t, map[string]string{"hero.yaml": heroYAML(up.URL)})
	srv, _ := newServer(t, dir, func(c *config.Config) { c.Fetch.MaxSize = 16 })

	resp, _ := httpGet(t, srv.URL+"/elements/hero/content", map[string]string{"Accept": "image/webp"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing upstream status=%d", resp.StatusCode)
	}
	resp, _ = httpGet(t, srv.URL+"/elements/hero/content", map[string]string{"Accept": "image/jpeg"})
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upstream status=%d", resp.StatusCode)
	}
}

func TestE2E_InlineContentAndNegotiate(t *testing.T) {
	dir := writeElementsDir(t, map[string]string{"note.yaml": noteYAML})
	srv, _ := newServer(t, dir, nil)

	resp, body := httpGet(t, srv.URL+"/elements/note/content", map[string]string{"Accept": "text/plain"})
	if resp.StatusCode != http.StatusOK || string(body) != "Release notes" || resp.Header.Get("X-Content-Source") != "inline" {
		t.Fatalf("status=%d body=%q headers=%v", resp.StatusCode, body, resp.Header)
	}

	resp, body = httpPostJSON(t, srv.URL+"/elements/note/negotiate", `{"accept":["text/markdown","text/*;q=0.5"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("negotiate status=%d body=%s", resp.StatusCode, body)
	}
	var nr types.NegotiateResponse
	decode(t, body, &nr)
	if nr.Selected == nil || nr.Selected.MediaType != "text/markdown" || len(nr.Candidates) != 2 {
		t.Fatalf("negotiate=%+v", nr)
	}
}

func TestE2E_EventsFlow(t *testing.T) {
	dir := writeElementsDir(t, map[string]string{"note.yaml": noteYAML})
	srv, svc := newServer(t, dir, nil)

	resp, body := httpPostJSON(t, srv.URL+"/events", `{"elementId":"note","elementType":"markdown","eventType":"updateProps","data":{"props":{"title":"v2"}},"metadata":{"source":"agent","priority":"high"}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("send status=%d body=%s", resp.StatusCode, body)
	}
	var ack types.SendEventResponse
	decode(t, body, &ack)
	if !ack.Success || ack.EventID == "" {
		t.Fatalf("ack=%+v", ack)
	}

	res := svc.Events().Tick(context.Background())
	if len(res.Successful) != 1 {
		t.Fatalf("tick=%+v", res)
	}

	resp, body = httpGet(t, srv.URL+"/elements/note", nil)
	var st types.ElementStatus
	decode(t, body, &st)
	if st.Element.Metadata["title"] != "v2" {
		t.Fatalf("metadata=%v", st.Element.Metadata)
	}

	resp, body = httpGet(t, srv.URL+"/elements/note/history", nil)
	var hist types.HistoryResponse
	decode(t, body, &hist)
	if len(hist.Entries) != 1 || !hist.Entries[0].Success || hist.Entries[0].Event.ID != ack.EventID {
		t.Fatalf("history=%+v", hist)
	}

	resp, _ = httpPostJSON(t, srv.URL+"/events", `{"elementId":"ghost","eventType":"updateStyle"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown element status=%d", resp.StatusCode)
	}
	resp, _ = httpPostJSON(t, srv.URL+"/events", `{"elementId":"note","eventType":"updateStyle","metadata":{"priority":"urgent"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown priority status=%d", resp.StatusCode)
	}
}

func TestE2E_BatchAndBackpressure(t *testing.T) {
	dir := writeElementsDir(t, map[string]string{"note.yaml": noteYAML})
	srv, svc := newServer(t, dir, func(c *config.Config) { c.Queue.MaxSize = 2 })

	resp, body := httpPostJSON(t, srv.URL+"/events/batch", `[
		{"elementId":"note","eventType":"updateStyle","data":{"style":{"color":"red"}}},
		{"elementId":"note","eventType":"updateVariants"},
		{"elementId":"note","eventType":"refreshTransforms"},
		{"elementId":"ghost","eventType":"updateStyle"}
	]`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch status=%d body=%s", resp.StatusCode, body)
	}
	var br types.BatchEventsResponse
	decode(t, body, &br)
	if len(br.Successful) != 2 || len(br.Failed) != 2 {
		t.Fatalf("batch=%+v", br)
	}
	codes := []string{br.Failed[0].Code, br.Failed[1].Code}
	if diff := cmp.Diff([]string{types.SendQueueFull, types.SendNotFound}, codes); diff != "" {
		t.Fatalf("failure codes (-want +got):\n%s", diff)
	}

	resp, _ = httpPostJSON(t, srv.URL+"/events", `{"elementId":"note","eventType":"validateContent"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("full queue status=%d", resp.StatusCode)
	}

	svc.Events().Tick(context.Background())
	resp, _ = httpPostJSON(t, srv.URL+"/events", `{"elementId":"note","eventType":"validateContent"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("after drain status=%d", resp.StatusCode)
	}
}

func TestE2E_LifecycleGate(t *testing.T) {
	dir := writeElementsDir(t, map[string]string{"note.yaml": noteYAML})
	srv, svc := newServer(t, dir, nil)
	patch := `{"primary":{"type":"inline","mediaType":"text/markdown","source":"# v2"}}`

	resp, body := do(t, http.MethodPost, srv.URL+"/elements/note/suspend", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("suspend status=%d body=%s", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodPatch, srv.URL+"/elements/note/content", nil, []byte(patch))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("suspended update status=%d body=%s", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPatch, srv.URL+"/elements/note/props", nil, []byte(`{"props":{"pinned":true}}`))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("props while suspended status=%d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/elements/note/activate", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status=%d", resp.StatusCode)
	}
	resp, body = do(t, http.MethodPatch, srv.URL+"/elements/note/content", nil, []byte(patch))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("active update status=%d body=%s", resp.StatusCode, body)
	}
	svc.Events().Tick(context.Background())

	resp, body = httpGet(t, srv.URL+"/elements/note", nil)
	var st types.ElementStatus
	decode(t, body, &st)
	if st.State != "active" || st.Element.Metadata["pinned"] != true {
		t.Fatalf("element=%+v", st)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/elements/note", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status=%d", resp.StatusCode)
	}
	resp, _ = httpGet(t, srv.URL+"/elements/note", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted element status=%d", resp.StatusCode)
	}
}

func TestE2E_CreateAndStatus(t *testing.T) {
	srv, _ := newServer(t, writeElementsDir(t, nil), nil)
	el := `{"id":"chart","kind":"chart","content":{"primary":{"type":"inline","mediaType":"image/svg+xml","source":"<svg/>"}}}`

	resp, body := httpPostJSON(t, srv.URL+"/elements?activate=false", el)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", resp.StatusCode, body)
	}
	var st types.ElementStatus
	decode(t, body, &st)
	if st.State != "registered" {
		t.Fatalf("state=%q", st.State)
	}
	if resp, _ := httpPostJSON(t, srv.URL+"/elements", el); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status=%d", resp.StatusCode)
	}
	if resp, _ := httpPostJSON(t, srv.URL+"/elements", `{"id":"bad","content":{"primary":{"type":"inline","mediaType":"text/plain"}}}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status=%d", resp.StatusCode)
	}

	resp, body = httpGet(t, srv.URL+"/status", nil)
	var status types.StatusResponse
	decode(t, body, &status)
	if status.Elements != 1 || status.States["registered"] != 1 || status.Transport != "disconnected" {
		t.Fatalf("status=%+v", status)
	}

	resp, body = httpGet(t, srv.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "elementd_http_requests_total") {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}
}
