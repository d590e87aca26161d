package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"pkt.systems/cellview/internal/snapshot"
)

func TestHTTPMirrorOfMirror(t *testing.T) {
	requireLong(t)
	upstream := newTestServer(t, serverSetup{http: true})
	upstream.send(t, createCell)
	upstream.send(t, completeCell)
	upstream.waitSeq(t, 2)

	mirror := newTestServer(t, serverSetup{http: true, upstream: upstream.httpURL})
	waitSameHTML(t, upstream, mirror)

	upstream.send(t, secondCell)
	upstream.waitSeq(t, 3)
	waitSameHTML(t, upstream, mirror)

	doc := mirror.srv.Viewer().Snapshot(context.Background())
	if len(doc.Visible) != 2 || doc.Visible[0] != "5" || doc.Visible[1] != "6" {
		t.Fatalf("unexpected mirrored visible list %v", doc.Visible)
	}
}

func TestHTTPIndexAndCells(t *testing.T) {
	requireLong(t)
	ts := newTestServer(t, serverSetup{http: true})
	ts.send(t, createCell)
	ts.send(t, completeCell)
	ts.waitSeq(t, 2)

	body := get(t, ts.httpURL+"/")
	if !containsAll(body, []string{`id="main-output"`, `data-node="5"`, "answer 42", "viewer.js"}) {
		t.Fatalf("unexpected index page: %s", body)
	}

	var doc snapshot.Document
	if err := json.Unmarshal([]byte(get(t, ts.httpURL+"/api/cells")), &doc); err != nil {
		t.Fatalf("decode cells: %v", err)
	}
	if doc.Seq != 2 || len(doc.Cells) != 1 || doc.Cells[0].State != "Complete" {
		t.Fatalf("unexpected cells document %+v", doc)
	}

	resp, err := http.Post(ts.httpURL+"/api/hover", "application/json",
		strings.NewReader(`{"node":"5","token":"3","action":"enter"}`))
	if err != nil {
		t.Fatalf("hover: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected hover status %d", resp.StatusCode)
	}
	active := ts.srv.Viewer().Snapshot(context.Background()).Active
	if active == nil || active.Token != "3" {
		t.Fatalf("expected token 3 active, got %+v", active)
	}
}

func waitSameHTML(t *testing.T, want, got *testServer) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	var wantHTML, gotHTML string
	for time.Now().Before(deadline) {
		wantHTML = want.srv.Viewer().Snapshot(context.Background()).HTML
		gotHTML = got.srv.Viewer().Snapshot(context.Background()).HTML
		if wantHTML == gotHTML {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("mirror diverged:\n got %s\nwant %s", gotHTML, wantHTML)
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return string(data)
}
