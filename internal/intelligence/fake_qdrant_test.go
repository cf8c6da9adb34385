package intelligence

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
)

// fakeQdrant is an in-memory stand-in for the Qdrant REST endpoints the client uses
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection

	upsertCalls  int
	searchCalls  int
	failUpsertAt int // 1-based upsert call that returns 500
	rejectFilter bool
	apiKeys      []string
}

type fakeCollection struct {
	dim    int
	points map[string]VectorPoint
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	f := &fakeQdrant{collections: make(map[string]*fakeCollection)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthz check passed"))
	})
	mux.HandleFunc("GET /collections", f.listCollections)
	mux.HandleFunc("PUT /collections/{name}", f.createCollection)
	mux.HandleFunc("DELETE /collections/{name}", f.deleteCollection)
	mux.HandleFunc("GET /collections/{name}", f.collectionInfo)
	mux.HandleFunc("PUT /collections/{name}/points", f.upsertPoints)
	mux.HandleFunc("POST /collections/{name}/points/search", f.search)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) pointCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.collections[name]; ok {
		return len(c.points)
	}
	return -1
}

func writeResult(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"result": result, "status": "ok"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"status": map[string]string{"error": msg}})
}

func (f *fakeQdrant) listCollections(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list := []map[string]string{}
	for name := range f.collections {
		list = append(list, map[string]string{"name": name})
	}
	writeResult(w, map[string]interface{}{"collections": list})
}

func (f *fakeQdrant) createCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vectors struct {
			Size     int    `json:"size"`
			Distance string `json:"distance"`
		} `json:"vectors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Vectors.Distance != "Cosine" || req.Vectors.Size <= 0 {
		writeError(w, http.StatusBadRequest, "bad collection config")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	name := r.PathValue("name")
	if _, ok := f.collections[name]; ok {
		writeError(w, http.StatusConflict, "collection already exists")
		return
	}
	f.collections[name] = &fakeCollection{dim: req.Vectors.Size, points: make(map[string]VectorPoint)}
	writeResult(w, true)
}

func (f *fakeQdrant) deleteCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := r.PathValue("name")
	if _, ok := f.collections[name]; !ok {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}
	delete(f.collections, name)
	writeResult(w, true)
}

func (f *fakeQdrant) collectionInfo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}
	writeResult(w, map[string]interface{}{
		"status":        "green",
		"points_count":  len(c.points),
		"vectors_count": len(c.points),
	})
}

func (f *fakeQdrant) upsertPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points []VectorPoint `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertCalls == f.failUpsertAt {
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}
	for _, p := range req.Points {
		if len(p.Vector) != c.dim {
			writeError(w, http.StatusBadRequest, "wrong vector size")
			return
		}
	}
	for _, p := range req.Points {
		c.points[p.ID] = p
	}
	writeResult(w, map[string]string{"status": "completed"})
}

func (f *fakeQdrant) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vector []float32 `json:"vector"`
		Limit  int       `json:"limit"`
		Filter *struct {
			Must []struct {
				Key   string `json:"key"`
				Match struct {
					Value interface{} `json:"value"`
				} `json:"match"`
			} `json:"must"`
		} `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if req.Filter != nil && f.rejectFilter {
		writeError(w, http.StatusBadRequest, "index required for filter")
		return
	}

	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}

	type hit struct {
		ID      string                 `json:"id"`
		Score   float32                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	}
	hits := []hit{}
	for _, p := range c.points {
		if req.Filter != nil && !matches(p.Payload, req.Filter.Must) {
			continue
		}
		hits = append(hits, hit{ID: p.ID, Score: CosineSimilarity(req.Vector, p.Vector), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	writeResult(w, hits)
}

func matches(payload map[string]interface{}, must []struct {
	Key   string `json:"key"`
	Match struct {
		Value interface{} `json:"value"`
	} `json:"match"`
}) bool {
	md, _ := payload["metadata"].(map[string]interface{})
	for _, cond := range must {
		const prefix = "metadata."
		if len(cond.Key) <= len(prefix) || cond.Key[:len(prefix)] != prefix {
			return false
		}
		if md[cond.Key[len(prefix):]] != cond.Match.Value {
			return false
		}
	}
	return true
}
