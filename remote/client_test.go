package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/syncbox"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ClientOptions) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.BaseURL = server.URL
	client, err := NewClient(opts)
	require.NoError(t, err)

	return client
}

func sendRequest() syncbox.SendRequest {
	return syncbox.SendRequest{
		IdempotencyKey: syncbox.ID{15: 7},
		Kind:           "task.update",
		Payload:        []byte(`{"title":"x"}`),
		ProjectID:      "p1",
		BaseVersion:    3,
	}
}

func TestClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	require.Error(t, err)
}

func TestClientSendSuccess(t *testing.T) {
	var captured mutateRequest
	var headers http.Header
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/mutations", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(mutateResponse{Success: true})
	}, ClientOptions{
		TokenProvider: StaticToken("secret"),
		UserAgent:     "syncbox-test",
	})

	req := sendRequest()
	require.NoError(t, client.Send(context.Background(), req))

	assert.Equal(t, req.IdempotencyKey.String(), captured.IdempotencyKey)
	assert.Equal(t, "task.update", captured.Kind)
	assert.Equal(t, "p1", captured.ProjectID)
	assert.EqualValues(t, 3, captured.BaseVersion)
	assert.JSONEq(t, `{"title":"x"}`, string(captured.Payload))

	assert.Equal(t, req.IdempotencyKey.String(), headers.Get("Idempotency-Key"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "syncbox-test", headers.Get("User-Agent"))
}

func TestClientSendConflictBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(mutateResponse{Conflict: true, ServerVersion: 12})
	}, ClientOptions{})

	err := client.Send(context.Background(), sendRequest())
	var conflict *syncbox.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.EqualValues(t, 12, conflict.ServerVersion)
}

func TestClientSendConflictStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(mutateResponse{ServerVersion: 8})
	}, ClientOptions{})

	err := client.Send(context.Background(), sendRequest())
	var conflict *syncbox.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.EqualValues(t, 8, conflict.ServerVersion)
}

func TestClientSendBodyErrorRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(mutateResponse{Error: "busy", Retryable: true})
	}, ClientOptions{})

	err := client.Send(context.Background(), sendRequest())
	var transient *syncbox.TransientError
	require.ErrorAs(t, err, &transient)
}

func TestClientSendBodyErrorPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(mutateResponse{Error: "unknown kind"})
	}, ClientOptions{})

	err := client.Send(context.Background(), sendRequest())
	var permanent *syncbox.PermanentError
	require.ErrorAs(t, err, &permanent)
}

func TestClientSendUnappliedBodyIsNeverSuccess(t *testing.T) {
	// An empty error message must not turn a non-applied response into a
	// silent success.
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(mutateResponse{Success: false})
	}, ClientOptions{})

	err := client.Send(context.Background(), sendRequest())
	var permanent *syncbox.PermanentError
	require.ErrorAs(t, err, &permanent)

	client = newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(mutateResponse{Success: false, Retryable: true})
	}, ClientOptions{})

	err = client.Send(context.Background(), sendRequest())
	var transient *syncbox.TransientError
	require.ErrorAs(t, err, &transient)
}

func TestClientSendServerErrorsAreTransient(t *testing.T) {
	for _, status := range []int{http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}, ClientOptions{})

		err := client.Send(context.Background(), sendRequest())
		var transient *syncbox.TransientError
		require.ErrorAs(t, err, &transient, "status %d", status)
	}
}

func TestClientSendClientErrorsArePermanent(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity} {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}, ClientOptions{})

		err := client.Send(context.Background(), sendRequest())
		var permanent *syncbox.PermanentError
		require.ErrorAs(t, err, &permanent, "status %d", status)
	}
}

func TestClientSendTransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client, err := NewClient(ClientOptions{BaseURL: server.URL})
	require.NoError(t, err)
	server.Close()

	sendErr := client.Send(context.Background(), sendRequest())
	var transient *syncbox.TransientError
	require.ErrorAs(t, sendErr, &transient)
}

func TestClientSendTokenProviderFailure(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Errorf("request must not be sent without a token")
	}, ClientOptions{
		TokenProvider: func(context.Context) (string, error) {
			return "", errors.New("keychain locked")
		},
	})

	err := client.Send(context.Background(), sendRequest())
	var transient *syncbox.TransientError
	require.ErrorAs(t, err, &transient)
}

func TestClientCompare(t *testing.T) {
	var captured compareRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/compare", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(compareResponse{Status: "equal"})
	}, ClientOptions{})

	equal, err := client.Compare(context.Background(), "p1", "abc123")
	require.NoError(t, err)
	assert.True(t, equal)
	assert.Equal(t, "p1", captured.ResourceID)
	assert.Equal(t, "abc123", captured.LocalHash)
}

func TestClientCompareDrift(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(compareResponse{Status: "drift"})
	}, ClientOptions{})

	equal, err := client.Compare(context.Background(), "p1", "abc123")
	require.NoError(t, err)
	assert.False(t, equal)
}

func TestClientCompareUnexpectedStatusIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(compareResponse{Status: "maybe"})
	}, ClientOptions{})

	_, err := client.Compare(context.Background(), "p1", "abc123")
	require.Error(t, err)
}

func TestClientCompareHTTPFailureIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, ClientOptions{})

	_, err := client.Compare(context.Background(), "p1", "abc123")
	require.Error(t, err)
}

func TestClientCustomPaths(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sync":
			_ = json.NewEncoder(w).Encode(mutateResponse{Success: true})
		case "/api/diff":
			_ = json.NewEncoder(w).Encode(compareResponse{Status: "equal"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}, ClientOptions{MutatePath: "/api/sync", ComparePath: "/api/diff"})

	require.NoError(t, client.Send(context.Background(), sendRequest()))
	equal, err := client.Compare(context.Background(), "p1", "h")
	require.NoError(t, err)
	assert.True(t, equal)
}
