package notesapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const treeJSON = `{
  "cse": {
    "year1": {
      "section-a": {
        "networks": [
          {"id": "42", "type": "md", "content": "# OSI", "meta": {"title": "OSI", "order": 999, "likes": 3, "dislikes": 1}}
        ]
      }
    }
  },
  "ece": {}
}`

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			_, _ = w.Write([]byte("OK"))
		case "/api/public/tree":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(treeJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", 0, nil)
	assert.Equal(t, srv.URL+"/api", c.BaseURL())
	assert.True(t, c.CheckHealth(context.Background()))

	tr, err := c.FetchTree(context.Background())
	require.NoError(t, err)
	entries := tr["cse"]["year1"]["section-a"]["networks"]
	require.Len(t, entries, 1)
	assert.Equal(t, "42", entries[0].ID)
	assert.Equal(t, "OSI", entries[0].Meta.Title)
	assert.Equal(t, 3, entries[0].Meta.Likes)
	assert.Contains(t, tr, "ece")
}

func TestClientUnhealthy(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
		},
		{
			name: "too slow",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(time.Second):
				case <-r.Context().Done():
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(srv.URL, 50*time.Millisecond, nil)
			assert.False(t, c.CheckHealth(context.Background()))
			_, err := c.FetchTree(context.Background())
			assert.Error(t, err)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1", 50*time.Millisecond, nil)
		assert.False(t, c.CheckHealth(context.Background()))
	})
}
