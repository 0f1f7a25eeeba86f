package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bearerServer(t *testing.T, token string, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFacebookProfile(t *testing.T) {
	var gotFields string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFields = r.URL.Query().Get("fields")
		assert.Equal(t, "Bearer fb-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"123","name":"Ann","email":"ann@x.com","picture":{"data":{"url":"http://pic"}}}`))
	}))
	defer srv.Close()

	fb := NewFacebook(srv.URL+"/me", time.Second, WithHTTPClient(srv.Client()))
	p, err := fb.Profile(context.Background(), "fb-token")
	require.NoError(t, err)

	assert.Equal(t, facebookFields, gotFields)
	assert.Equal(t, &Profile{ID: "123", Email: "ann@x.com", Name: "Ann", Picture: "http://pic"}, p)
}

func TestGoogleProfile(t *testing.T) {
	srv := bearerServer(t, "g-token", `{"sub":"g-1","email":"bob@x.com","name":"Bob","picture":"http://g"}`)

	g := NewGoogle(srv.URL, time.Second)
	p, err := g.Profile(context.Background(), "g-token")
	require.NoError(t, err)
	assert.Equal(t, &Profile{ID: "g-1", Email: "bob@x.com", Name: "Bob", Picture: "http://g"}, p)
}

func TestProfileRejectedToken(t *testing.T) {
	srv := bearerServer(t, "good", `{"sub":"g-1","email":"bob@x.com"}`)

	_, err := NewGoogle(srv.URL, time.Second).Profile(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	_, err = NewGoogle(srv.URL, time.Second).Profile(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestProfileIncomplete(t *testing.T) {
	srv := bearerServer(t, "tok", `{"id":"123","name":"No Email"}`)

	_, err := NewFacebook(srv.URL, time.Second).Profile(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrIncompleteProfile)
}

func TestProfileServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewGoogle(srv.URL, time.Second).Profile(context.Background(), "tok")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidAccessToken)
}

func TestProfileTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	start := time.Now()
	_, err := NewGoogle(srv.URL, 50*time.Millisecond).Profile(context.Background(), "tok")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
