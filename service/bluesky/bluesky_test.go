package bluesky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/blacktop/polybot"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvHandle, EnvAppPassword, EnvPDSURL} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	_, err := loadConfig(Config{})
	var missing polybot.MissingConfigError
	if !errors.As(err, &missing) {
		t.Fatalf("loadConfig error = %v, want MissingConfigError", err)
	}
	if want := []string{EnvHandle, EnvAppPassword}; !reflect.DeepEqual(missing.Variables, want) {
		t.Errorf("Variables = %v, want %v", missing.Variables, want)
	}

	cfg, err := loadConfig(Config{Handle: "@bot.bsky.social", AppPassword: "pw"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := Config{Handle: "bot.bsky.social", AppPassword: "pw", PDSURL: DefaultPDSURL}
	if cfg != want {
		t.Errorf("loadConfig = %+v, want %+v", cfg, want)
	}

	t.Setenv(EnvPDSURL, "https://pds.example/")
	cfg, err = loadConfig(Config{Handle: "bot", AppPassword: "pw", PDSURL: "https://ignored.example"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.PDSURL != "https://pds.example" {
		t.Errorf("PDSURL = %q, want the environment value", cfg.PDSURL)
	}
}

type fakePDS struct {
	*httptest.Server
	records []map[string]any
	status  int
}

func newFakePDS(t *testing.T) *fakePDS {
	t.Helper()
	pds := &fakePDS{}
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"accessJwt": "access", "refreshJwt": "refresh", "handle": "bot.test", "did": "did:plc:bot"}`)
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		if pds.status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(pds.status)
			fmt.Fprint(w, `{"error": "InternalServerError", "message": "try again"}`)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode createRecord body: %v", err)
		}
		pds.records = append(pds.records, body)
		n := len(pds.records)
		fmt.Fprintf(w, `{"uri": "at://did:plc:bot/app.bsky.feed.post/%d", "cid": "cid%d"}`, n, n)
	})
	pds.Server = httptest.NewServer(mux)
	t.Cleanup(pds.Close)
	return pds
}

func newClient(t *testing.T, pds *fakePDS) *Client {
	t.Helper()
	clearEnv(t)
	client, err := New(context.Background(), Config{Handle: "bot.test", AppPassword: "pw", PDSURL: pds.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Auth(context.Background()); err != nil {
		t.Fatalf("Auth: %v", err)
	}
	return client
}

func TestPublishThread(t *testing.T) {
	pds := newFakePDS(t)
	client := newClient(t, pds)
	ctx := context.Background()

	first, err := client.Publish(ctx, polybot.Post{Text: "part one"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if first.Root != nil {
		t.Errorf("first post has root %+v", first.Root)
	}
	second, err := client.Publish(ctx, polybot.Post{Text: "part two", ReplyTo: &first})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	third, err := client.Publish(ctx, polybot.Post{Text: "part three", ReplyTo: &second})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if third.Root == nil || third.Root.ID != first.ID {
		t.Errorf("third.Root = %+v, want %s", third.Root, first.ID)
	}

	if len(pds.records) != 3 {
		t.Fatalf("PDS saw %d records, want 3", len(pds.records))
	}
	if pds.records[0]["repo"] != "did:plc:bot" || pds.records[0]["collection"] != postCollection {
		t.Errorf("createRecord input = %v", pds.records[0])
	}
	record := pds.records[2]["record"].(map[string]any)
	if record["text"] != "part three" {
		t.Errorf("text = %v", record["text"])
	}
	reply := record["reply"].(map[string]any)
	root := reply["root"].(map[string]any)
	parent := reply["parent"].(map[string]any)
	if root["uri"] != first.ID || root["cid"] != first.CID {
		t.Errorf("reply root = %v, want %+v", root, first)
	}
	if parent["uri"] != second.ID || parent["cid"] != second.CID {
		t.Errorf("reply parent = %v, want %+v", parent, second)
	}
}

func TestPublishTemporaryFailure(t *testing.T) {
	pds := newFakePDS(t)
	pds.status = http.StatusServiceUnavailable
	client := newClient(t, pds)

	_, err := client.Publish(context.Background(), polybot.Post{Text: "hello"})
	var svcErr *polybot.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("Publish error = %v, want ServiceError", err)
	}
	if !svcErr.Temporary {
		t.Errorf("503 not classified as temporary: %v", err)
	}
}

func TestPublishRequiresAuth(t *testing.T) {
	clearEnv(t)
	client, err := New(context.Background(), Config{Handle: "bot", AppPassword: "pw"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Publish(context.Background(), polybot.Post{Text: "x"}); err == nil {
		t.Error("Publish succeeded without a session")
	}
}
