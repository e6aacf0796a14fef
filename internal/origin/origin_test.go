package origin

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLocalIsDistinctFromRemote(t *testing.T) {
	id := NewSessionID()

	if Local() == Remote(id) {
		t.Fatal("local origin must differ from any remote origin")
	}
	if Local() != (Origin{}) {
		t.Error("zero Origin should be the local origin")
	}
	if !Local().IsLocal() {
		t.Error("Local().IsLocal() = false")
	}
	if Remote(id).IsLocal() {
		t.Error("Remote().IsLocal() = true")
	}
	// The nil session is still a remote session.
	if Remote(NilSession) == Local() {
		t.Error("Remote(NilSession) must not equal Local()")
	}
}

func TestRemoteEquality(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()

	if Remote(a) != Remote(a) {
		t.Error("same session should give equal origins")
	}
	if Remote(a) == Remote(b) {
		t.Error("different sessions should give different origins")
	}
}

func TestSession(t *testing.T) {
	id := NewSessionID()

	got, ok := Remote(id).Session()
	if !ok || got != id {
		t.Errorf("Session() = %v, %v; want %v, true", got, ok, id)
	}
	if _, ok := Local().Session(); ok {
		t.Error("local origin should have no session")
	}
}

func TestStringAndKind(t *testing.T) {
	id := NewSessionID()

	if got := Local().String(); got != "local" {
		t.Errorf("Local().String() = %q", got)
	}
	if got := Remote(id).String(); got != "remote:"+id.String() {
		t.Errorf("Remote().String() = %q", got)
	}
	if Local().Kind() != "local" || Remote(id).Kind() != "remote" {
		t.Error("unexpected Kind values")
	}
}

func TestParseSessionID(t *testing.T) {
	id := NewSessionID()

	parsed, err := ParseSessionID(id.String())
	if err != nil {
		t.Fatalf("ParseSessionID failed: %v", err)
	}
	if parsed != id {
		t.Errorf("parsed = %v, want %v", parsed, id)
	}

	if _, err := ParseSessionID("not-a-uuid"); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestOriginAsMapKeyAndJSON(t *testing.T) {
	id := NewSessionID()
	m := map[Origin]int{Local(): 1, Remote(id): 2}
	if m[Local()] != 1 || m[Remote(id)] != 2 {
		t.Fatal("origins should be usable as map keys")
	}

	data, err := json.Marshal([]Origin{Local(), Remote(id)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"local"`) || !strings.Contains(string(data), id.String()) {
		t.Errorf("unexpected JSON %s", data)
	}
}
