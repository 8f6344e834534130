package http_utils

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON(t *testing.T) {
	var gotBody, gotType, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	status, err := PostJSON(context.Background(), server.Client(), server.URL, []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, `{"ok":true}`, gotBody)
}

func TestPostJSON_BadURL(t *testing.T) {
	_, err := PostJSON(context.Background(), http.DefaultClient, "://nope", nil)
	assert.Error(t, err)
}
