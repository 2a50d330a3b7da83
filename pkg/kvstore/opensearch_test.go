package kvstore

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/storekit/pkg/errdefs"
	"github.com/Zereker/storekit/pkg/osclient"
)

// fakeOpenSearch serves the subset of the document API the KV store uses.
type fakeOpenSearch struct {
	mu       sync.Mutex
	docs     map[string]json.RawMessage
	searches int
}

func newFakeOpenSearch(t *testing.T) *httptest.Server {
	srv, _ := newFakeOpenSearchWithState(t)
	return srv
}

func newFakeOpenSearchWithState(t *testing.T) (*httptest.Server, *fakeOpenSearch) {
	f := &fakeOpenSearch{docs: map[string]json.RawMessage{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv, f
}

func (f *fakeOpenSearch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	parts := strings.SplitN(strings.TrimPrefix(r.URL.EscapedPath(), "/"), "/", 3)

	switch {
	case len(parts) == 1 && r.Method == http.MethodPut:
		w.Write([]byte(`{"acknowledged":true,"index":"` + parts[0] + `"}`))

	case len(parts) == 2 && parts[1] == "_search":
		var req struct {
			Size  int `json:"size"`
			Query struct {
				Bool struct {
					Filter []map[string]map[string]string `json:"filter"`
				} `json:"bool"`
			} `json:"query"`
			SearchAfter []string `json:"search_after"`
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		namespace := req.Query.Bool.Filter[0]["term"]["namespace"]
		f.searches++

		var matched []kvDocument
		raw := map[string]json.RawMessage{}
		for _, src := range f.docs {
			var doc kvDocument
			json.Unmarshal(src, &doc)
			if doc.Namespace != namespace {
				continue
			}
			if len(req.SearchAfter) > 0 && doc.Key <= req.SearchAfter[0] {
				continue
			}
			matched = append(matched, doc)
			raw[doc.Key] = src
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })
		total := len(matched)
		if len(matched) > req.Size {
			matched = matched[:req.Size]
		}

		hits := make([]map[string]any, 0, len(matched))
		for _, doc := range matched {
			hits = append(hits, map[string]any{"_id": doc.Key, "_score": nil, "_source": raw[doc.Key], "sort": []string{doc.Key}})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"took": 1,
			"hits": map[string]any{"total": map[string]any{"value": total, "relation": "eq"}, "hits": hits},
		})

	case len(parts) == 3 && parts[1] == "_doc":
		id := parts[2]
		switch r.Method {
		case http.MethodPut, http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			f.docs[id] = body
			w.Write([]byte(`{"_id":"` + id + `","result":"created"}`))
		case http.MethodGet:
			src, ok := f.docs[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"_id":"` + id + `","found":false}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"_id": id, "found": true, "_source": src})
		case http.MethodDelete:
			if _, ok := f.docs[id]; !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"_id":"` + id + `","result":"not_found"}`))
				return
			}
			delete(f.docs, id)
			w.Write([]byte(`{"_id":"` + id + `","result":"deleted"}`))
		}

	default:
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"illegal_argument_exception","reason":"unsupported"},"status":400}`))
	}
}

func TestOpenSearchStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		srv := newFakeOpenSearch(t)
		client, err := osclient.New(osclient.Config{Addresses: []string{srv.URL}})
		require.NoError(t, err)

		s := NewOpenSearchStore(client, "kv")
		require.NoError(t, s.EnsureIndex(t.Context()))
		return s
	})
}

func TestOpenSearchStore_KeysWithSlashes(t *testing.T) {
	srv := newFakeOpenSearch(t)
	client, err := osclient.New(osclient.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	s := NewOpenSearchStore(client, "kv")

	ctx := t.Context()
	require.NoError(t, s.Put(ctx, "b/c", Value{"v": "1"}, "a"))
	require.NoError(t, s.Put(ctx, "c", Value{"v": "2"}, "a/b"))

	got, err := s.Get(ctx, "b/c", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", got["v"])

	got, err = s.Get(ctx, "c", "a/b")
	require.NoError(t, err)
	assert.Equal(t, "2", got["v"])
}

func TestOpenSearchStore_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client, err := osclient.New(osclient.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	s := NewOpenSearchStore(client, "kv")

	err = s.Put(t.Context(), "k", Value{}, "")
	assert.ErrorIs(t, err, errdefs.ErrStoreUnavailable)
}

func TestOpenSearchStore_GetAllPages(t *testing.T) {
	prev := openSearchPageSize
	openSearchPageSize = 2
	t.Cleanup(func() { openSearchPageSize = prev })

	srv, f := newFakeOpenSearchWithState(t)
	client, err := osclient.New(osclient.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	s := NewOpenSearchStore(client, "kv")

	ctx := t.Context()
	for i := range 5 {
		require.NoError(t, s.Put(ctx, "k"+strconv.Itoa(i), Value{"i": i}, "ns"))
	}
	require.NoError(t, s.Put(ctx, "other", Value{}, "elsewhere"))

	all, err := s.GetAll(ctx, "ns")
	require.NoError(t, err)
	assert.Len(t, all, 5)
	for i := range 5 {
		assert.EqualValues(t, i, all["k"+strconv.Itoa(i)]["i"])
	}

	f.mu.Lock()
	searches := f.searches
	f.mu.Unlock()
	assert.Equal(t, 3, searches, "5 entries in pages of 2")
}
