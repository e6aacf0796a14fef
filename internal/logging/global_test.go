package logging

import (
	"bytes"
	"testing"
)

func TestSetGlobalAndGlobal(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	l, _ := newBufLogger(LevelInfo, FormatJSON)
	SetGlobal(l)
	if Global() != l {
		t.Error("Global() should return the logger set by SetGlobal")
	}

	SetGlobal(nil)
	if Global() != l {
		t.Error("SetGlobal(nil) should be ignored")
	}
}

func TestConfigureWriterEnablesCallerAtDebug(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	var buf bytes.Buffer
	l := ConfigureWriter("debug", "json", &buf)
	if Global() != l {
		t.Fatal("ConfigureWriter should install the global logger")
	}
	l.Debug("test")

	if entry := decodeEntry(t, &buf); entry.File == "" {
		t.Error("debug level should enable caller info")
	}
}

func TestConfigureWriterNoCallerAtInfo(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	var buf bytes.Buffer
	ConfigureWriter("info", "json", &buf)
	Infof("test", map[string]any{"k": "v"})

	entry := decodeEntry(t, &buf)
	if entry.File != "" {
		t.Error("info level should not add caller info")
	}
	if entry.Fields["k"] != "v" {
		t.Errorf("fields = %v", entry.Fields)
	}
}

func TestGlobalInitialized(t *testing.T) {
	if Global() == nil {
		t.Fatal("global logger should be initialized")
	}
}
