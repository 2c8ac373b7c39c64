package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/overmindtech/flightctl/flight"
	"github.com/overmindtech/flightctl/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method        string
	EscapedPath   string
	RawQuery      string
	Authorization string
	HasAuth       bool
}

type testAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

// newTestAPI starts a TLS server that answers every request with status and
// body
func newTestAPI(t *testing.T, status int, body string) *testAPI {
	t.Helper()

	api := &testAPI{}
	api.server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth := r.Header["Authorization"]

		api.mu.Lock()
		api.requests = append(api.requests, recordedRequest{
			Method:        r.Method,
			EscapedPath:   r.URL.EscapedPath(),
			RawQuery:      r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			HasAuth:       hasAuth,
		})
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(api.server.Close)

	return api
}

func (a *testAPI) host() string {
	return strings.TrimPrefix(a.server.URL, "https://")
}

func (a *testAPI) discovery(t *testing.T) *Discovery {
	t.Helper()

	d, err := New(a.server.Client(), a.host())
	require.NoError(t, err)

	return d
}

func (a *testAPI) only(t *testing.T) recordedRequest {
	t.Helper()

	a.mu.Lock()
	defer a.mu.Unlock()

	require.Len(t, a.requests, 1)
	return a.requests[0]
}

func mustAsset(t *testing.T, assetID, projectID string) flight.AssetRef {
	t.Helper()

	project, err := flight.NewProject(projectID)
	require.NoError(t, err)
	asset, err := flight.NewDataAsset(assetID, project)
	require.NoError(t, err)

	return asset
}

func mustConnection(t *testing.T, connectionID, projectID string) flight.AssetRef {
	t.Helper()

	project, err := flight.NewProject(projectID)
	require.NoError(t, err)
	connection, err := flight.NewConnection(connectionID, project)
	require.NoError(t, err)

	return connection
}

func TestDiscoverAssetURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		assetID   string
		projectID string
		wantPath  string
		wantQuery string
	}{
		{
			name:      "plain",
			assetID:   "asset_id",
			projectID: "project_id",
			wantPath:  "/v2/connections/assets/asset_id",
			wantQuery: "project_id=project_id&fetch=metadata&context=source",
		},
		{
			name:      "asset id with space",
			assetID:   "a b",
			projectID: "p",
			wantPath:  "/v2/connections/assets/a+b",
			wantQuery: "project_id=p&fetch=metadata&context=source",
		},
		{
			name:      "project id with space",
			assetID:   "a",
			projectID: "p q",
			wantPath:  "/v2/connections/assets/a",
			wantQuery: "project_id=p+q&fetch=metadata&context=source",
		},
		{
			name:      "reserved characters",
			assetID:   "a/b?c",
			projectID: "p&q=r",
			wantPath:  "/v2/connections/assets/a%2Fb%3Fc",
			wantQuery: "project_id=p%26q%3Dr&fetch=metadata&context=source",
		},
		{
			name:      "dots that are not a path segment",
			assetID:   "...",
			projectID: "p",
			wantPath:  "/v2/connections/assets/...",
			wantQuery: "project_id=p&fetch=metadata&context=source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := newTestAPI(t, http.StatusOK, `{}`)

			_, err := api.discovery(t).DiscoverAsset(context.Background(), mustAsset(t, tt.assetID, tt.projectID))
			require.NoError(t, err)

			req := api.only(t)
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, tt.wantPath, req.EscapedPath)
			assert.Equal(t, tt.wantQuery, req.RawQuery)
		})
	}
}

func TestDiscoverPathURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		connectionID string
		path         string
		wantPath     string
		wantQuery    string
	}{
		{
			name:         "plain",
			connectionID: "conn",
			path:         "/bucket/file.csv",
			wantPath:     "/v2/connections/conn/assets",
			wantQuery:    "project_id=project_id&path=%2Fbucket%2Ffile.csv&fetch=datasource_type,connection,interaction&context=target",
		},
		{
			name:         "connection id with space",
			connectionID: "a b",
			path:         "p",
			wantPath:     "/v2/connections/a+b/assets",
			wantQuery:    "project_id=project_id&path=p&fetch=datasource_type,connection,interaction&context=target",
		},
		{
			name:         "path with space and plus",
			connectionID: "conn",
			path:         "/my bucket/a+b.csv",
			wantPath:     "/v2/connections/conn/assets",
			wantQuery:    "project_id=project_id&path=%2Fmy+bucket%2Fa%2Bb.csv&fetch=datasource_type,connection,interaction&context=target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := newTestAPI(t, http.StatusOK, `{}`)

			_, err := api.discovery(t).DiscoverPath(context.Background(), mustConnection(t, tt.connectionID, "project_id"), tt.path)
			require.NoError(t, err)

			req := api.only(t)
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, tt.wantPath, req.EscapedPath)
			assert.Equal(t, tt.wantQuery, req.RawQuery)
		})
	}
}

func TestDiscoveryResults(t *testing.T) {
	t.Parallel()

	body := `{"fields":[{"name":"ID","type":{"type":"bigint"}}],"datasource_type":{"entity":{"name":"db2"}}}`

	t.Run("asset", func(t *testing.T) {
		api := newTestAPI(t, http.StatusOK, body)
		asset := mustAsset(t, "asset_id", "project_id")

		result, err := api.discovery(t).DiscoverAsset(context.Background(), asset)
		require.NoError(t, err)

		assert.JSONEq(t, body, string(result.Raw()))
		assert.Equal(t, flight.ContextSource, result.Kind())

		got, ok := result.Asset()
		require.True(t, ok)
		assert.Equal(t, asset, got)
	})

	t.Run("path", func(t *testing.T) {
		api := newTestAPI(t, http.StatusOK, body)

		result, err := api.discovery(t).DiscoverPath(context.Background(), mustConnection(t, "conn", "project_id"), "/a")
		require.NoError(t, err)

		assert.JSONEq(t, body, string(result.Raw()))
		assert.Equal(t, flight.ContextTarget, result.Kind())
	})
}

func TestDiscoveryErrors(t *testing.T) {
	t.Parallel()

	t.Run("bad request", func(t *testing.T) {
		api := newTestAPI(t, http.StatusBadRequest, `{"errors":[{"code":"invalid_parameter"}]}`)

		_, err := api.discovery(t).DiscoverAsset(context.Background(), mustAsset(t, "a", "p"))

		var apiErr *responses.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, `{"errors":[{"code":"invalid_parameter"}]}`, apiErr.Body)
	})

	t.Run("error without JSON body", func(t *testing.T) {
		api := newTestAPI(t, http.StatusInternalServerError, `oops`)

		_, err := api.discovery(t).DiscoverPath(context.Background(), mustConnection(t, "c", "p"), "/x")

		var apiErr *responses.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "oops", apiErr.Body)
	})

	t.Run("not an object", func(t *testing.T) {
		api := newTestAPI(t, http.StatusOK, `[{"a":1}]`)

		_, err := api.discovery(t).DiscoverAsset(context.Background(), mustAsset(t, "a", "p"))

		var parseErr *responses.ParseError
		assert.ErrorAs(t, err, &parseErr)
	})

	t.Run("not JSON", func(t *testing.T) {
		api := newTestAPI(t, http.StatusOK, `<html></html>`)

		_, err := api.discovery(t).DiscoverAsset(context.Background(), mustAsset(t, "a", "p"))

		var parseErr *responses.ParseError
		assert.ErrorAs(t, err, &parseErr)
	})

	t.Run("cancelled", func(t *testing.T) {
		api := newTestAPI(t, http.StatusOK, `{}`)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := api.discovery(t).DiscoverAsset(ctx, mustAsset(t, "a", "p"))

		assert.ErrorIs(t, err, responses.ErrInterrupted)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("wrong entity kinds", func(t *testing.T) {
		api := newTestAPI(t, http.StatusOK, `{}`)
		d := api.discovery(t)

		var configErr *flight.ConfigError

		_, err := d.DiscoverAsset(context.Background(), mustConnection(t, "c", "p"))
		assert.ErrorAs(t, err, &configErr)

		_, err = d.DiscoverPath(context.Background(), mustAsset(t, "a", "p"), "/x")
		assert.ErrorAs(t, err, &configErr)

		api.mu.Lock()
		defer api.mu.Unlock()
		assert.Empty(t, api.requests)
	})
}

func TestAccessToken(t *testing.T) {
	t.Parallel()

	t.Run("sent when set", func(t *testing.T) {
		api := newTestAPI(t, http.StatusOK, `{}`)
		d := api.discovery(t)
		d.SetAccessToken("MY_TOKEN")

		_, err := d.DiscoverAsset(context.Background(), mustAsset(t, "a", "p"))
		require.NoError(t, err)

		assert.Equal(t, "Bearer MY_TOKEN", api.only(t).Authorization)
	})

	t.Run("absent by default", func(t *testing.T) {
		api := newTestAPI(t, http.StatusOK, `{}`)

		_, err := api.discovery(t).DiscoverAsset(context.Background(), mustAsset(t, "a", "p"))
		require.NoError(t, err)

		assert.False(t, api.only(t).HasAuth)
	})

	t.Run("absent after clearing", func(t *testing.T) {
		api := newTestAPI(t, http.StatusOK, `{}`)
		d := api.discovery(t)
		d.SetAccessToken("MY_TOKEN")
		d.SetAccessToken("")

		_, err := d.DiscoverPath(context.Background(), mustConnection(t, "c", "p"), "/x")
		require.NoError(t, err)

		assert.False(t, api.only(t).HasAuth)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "api.host.name")
	assert.True(t, errors.Is(err, ErrNilClient), "expected ErrNilClient, got %v", err)

	_, err = New(http.DefaultClient, "")
	var configErr *flight.ConfigError
	assert.ErrorAs(t, err, &configErr)

	d, err := New(http.DefaultClient, "api.host.name")
	require.NoError(t, err)
	assert.Equal(t, "api.host.name", d.APIHost())
}

func TestOptions(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, http.StatusOK, `{"fields":[{"name":"ID","type":{"type":"bigint"}}]}`)
	d := api.discovery(t)

	result, err := d.DiscoverAsset(context.Background(), mustAsset(t, "asset_id", "project_id"))
	require.NoError(t, err)

	options := d.Options(result).NumPartitions(2).Build()

	assert.Equal(t, "grpc+tls://"+api.host()+":443", options[flight.OptionLocation])
	assert.JSONEq(t, `{
		"fields": [{"name":"ID","type":{"type":"bigint"}}],
		"asset_id": "asset_id",
		"project_id": "project_id",
		"context": "source",
		"num_partitions": 2
	}`, options[flight.OptionCommand])
}
