package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/moqlab/relay/internal/announce"
	"github.com/moqlab/relay/internal/origin"
)

// RoutesPattern is where RoutesHandler is usually mounted.
const RoutesPattern = "/debug/routes"

// RouteTable is a routing table that can be copied.
type RouteTable interface {
	Snapshot() map[announce.Path][]origin.Origin
}

// RouteEntry is one path of the routes document.
type RouteEntry struct {
	Path announce.Path `json:"path"`
	// Route is the origin subscribers are sent to: the first of Origins.
	Route   origin.Origin   `json:"route"`
	Origins []origin.Origin `json:"origins"`
}

// RoutesDocument is the body served by RoutesHandler.
type RoutesDocument struct {
	Tables map[string][]RouteEntry `json:"tables"`
}

// RoutesHandler serves named routing tables as JSON, paths sorted.
// The optional "prefix" query parameter keeps only paths under it.
type RoutesHandler struct {
	tables map[string]RouteTable
}

// NewRoutesHandler creates a handler over the given tables.
func NewRoutesHandler(tables map[string]RouteTable) *RoutesHandler {
	return &RoutesHandler{tables: tables}
}

func (h *RoutesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	prefix := announce.Path(strings.TrimSpace(r.URL.Query().Get("prefix")))

	doc := RoutesDocument{Tables: make(map[string][]RouteEntry, len(h.tables))}
	for name, table := range h.tables {
		doc.Tables[name] = entries(table.Snapshot(), prefix)
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(doc)
}

func entries(snapshot map[announce.Path][]origin.Origin, prefix announce.Path) []RouteEntry {
	out := make([]RouteEntry, 0, len(snapshot))
	for path, origins := range snapshot {
		if len(origins) == 0 || !path.HasPrefix(prefix) {
			continue
		}
		out = append(out, RouteEntry{Path: path, Route: origins[0], Origins: origins})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
