package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/formwork-ui/formwork/internal/schema"
)

func TestClient_FetchSchema(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meta/schemas/task", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"fields": []map[string]interface{}{
				{"key": "name", "label": "Name", "data_type": "string", "editable": true},
			},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, zap.NewNop())
	fields, err := c.FetchSchema(context.Background(), "task")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "name", fields[0].Key)
	assert.Equal(t, schema.TypeString, fields[0].DataType)
}

func TestClient_FetchSchemaUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, zap.NewNop())
	_, err := c.FetchSchema(context.Background(), "task")
	assert.Error(t, err)
}

func TestClient_FetchOptions(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meta/lookups/enum-table/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"options": []map[string]string{
				{"value": "open", "label": "Open"},
			},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, zap.NewNop())
	options, err := c.FetchOptions(context.Background(), schema.SourceEnumTable, "status")
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, "open", options[0].Value)
}

func TestClient_Persist(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/entities/task/1", r.URL.Path)

		var changes map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&changes))
		assert.Equal(t, "B", changes["name"])

		// Echo back a normalized value
		json.NewEncoder(w).Encode(map[string]interface{}{"name": "B!"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, zap.NewNop())
	confirmed, err := c.Persist(context.Background(), "task", "1", map[string]interface{}{"name": "B"})
	require.NoError(t, err)
	assert.Equal(t, "B!", confirmed["name"])
}

func TestClient_PersistRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, zap.NewNop())
	_, err := c.Persist(context.Background(), "task", "1", map[string]interface{}{"name": "B"})
	assert.Error(t, err)
}
