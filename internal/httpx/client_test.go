package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accessJwt":"a","refreshJwt":"b"}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	var out struct {
		AccessJwt  string `json:"accessJwt"`
		RefreshJwt string `json:"refreshJwt"`
	}
	require.NoError(t, c.Get(context.Background(), "com.atproto.server.getSession", &out))
	assert.Equal(t, "a", out.AccessJwt)
}

func TestStatusErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"InvalidRequest"}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	err := c.Get(context.Background(), "com.atproto.server.createSession", &struct{}{})
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
}

func TestTypedValueRoundTrip(t *testing.T) {
	tv := TypedValue{Type: "tools.ozone.moderation.defs#modEventLabel", Payload: map[string]any{
		"createLabelVals": []string{"slur"},
	}}
	data, err := json.Marshal(tv)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	var typ string
	require.NoError(t, json.Unmarshal(fields[TypeField], &typ))
	assert.Equal(t, "tools.ozone.moderation.defs#modEventLabel", typ)

	var back TypedValue
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tv.Type, back.Type)
}
