package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_order(t *testing.T) {
	var order []string
	stage := func(name string) Middleware {
		return func(next Doer) Doer {
			return DoerFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name+" in")
				resp, err := next.Do(req)
				order = append(order, name+" out")
				return resp, err
			})
		}
	}

	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		order = append(order, "dispatch")
		return httptest.NewRecorder().Result(), nil
	}), stage("classify"), stage("inject"))

	_, err := d.Do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"classify in", "inject in", "dispatch", "inject out", "classify out"}, order)
}

func TestInjectCredentials_doesNotMutateCallerRequest(t *testing.T) {
	store := newTestStore(t, "tok_abc")

	var got string
	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		got = req.Header.Get("Authorization")
		return httptest.NewRecorder().Result(), nil
	}), InjectCredentials(store))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := d.Do(req)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok_abc", got)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestInjectCredentials_readsTokenPerRequest(t *testing.T) {
	store := newTestStore(t, "")

	var got []string
	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		got = append(got, req.Header.Get("Authorization"))
		return httptest.NewRecorder().Result(), nil
	}), InjectCredentials(store))

	do := func() {
		_, err := d.Do(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
	}

	do()
	require.NoError(t, store.SetSession("tok_abc", nil))
	do()
	require.NoError(t, store.Logout())
	do()

	assert.Equal(t, []string{"", "Bearer tok_abc", ""}, got)
}

func TestClassifyFailures_passesSuccess(t *testing.T) {
	store := newTestStore(t, "tok_abc")
	notified := false

	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusCreated)
		return rec.Result(), nil
	}), ClassifyFailures(store, func(context.Context, *HTTPError) { notified = true }))

	resp, err := d.Do(httptest.NewRequest(http.MethodPost, "/api/v1/patients", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.False(t, notified)
	assert.Equal(t, int32(0), store.logouts.Load())
}

func TestHTTPError_Detail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "string detail", body: `{"detail":"Altes Passwort falsch"}`, want: "Altes Passwort falsch"},
		{name: "structured detail", body: `{"detail":[{"loc":["body","username"]}]}`, want: `[{"loc":["body","username"]}]`},
		{name: "plain text", body: "bad gateway\n", want: "bad gateway"},
		{name: "empty", body: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &HTTPError{StatusCode: http.StatusBadRequest, Body: []byte(tt.body)}
			assert.Equal(t, tt.want, err.Detail())
		})
	}
}
