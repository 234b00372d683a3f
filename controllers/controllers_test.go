package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/parolam/breach-checker/models"
	"github.com/parolam/breach-checker/services"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	emails   map[string]services.EmailResult
	ranges   map[string][]models.SuffixCount
	stats    models.Stats
	err      error
	lastPref string
}

func (f *fakeChecker) CheckEmail(ctx context.Context, email string) (services.EmailResult, error) {
	if f.err != nil {
		return services.EmailResult{}, f.err
	}
	return f.emails[email], nil
}

func (f *fakeChecker) CheckPasswordPrefix(ctx context.Context, prefix string) ([]models.SuffixCount, error) {
	f.lastPref = prefix
	p, ok := services.ValidPrefix(prefix)
	if !ok {
		return nil, services.ErrInvalidPrefix
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.ranges[p], nil
}

func (f *fakeChecker) Stats(ctx context.Context) (models.Stats, error) {
	return f.stats, f.err
}

func (f *fakeChecker) Ping(ctx context.Context) error { return f.err }

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCheckEmailHandler(t *testing.T) {
	f := &fakeChecker{emails: map[string]services.EmailResult{
		"alice@example.com": {Pwned: true, Breaches: []services.BreachInfo{{Name: "Collection-1", Date: "19-01-2019"}}},
	}}
	r := NewRouter(f)

	t.Run("pwned", func(t *testing.T) {
		w := serve(r, http.MethodPost, "/check-email", `{"email":"alice@example.com"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"pwned":true,"breaches":[{"name":"Collection-1","date":"19-01-2019"}]}`, w.Body.String())
		assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	})

	t.Run("not pwned", func(t *testing.T) {
		w := serve(r, http.MethodPost, "/check-email", `{"email":"bob@example.com"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"pwned":false}`, w.Body.String())
	})

	t.Run("missing email", func(t *testing.T) {
		for _, body := range []string{`{}`, `{"email":""}`, `not json`} {
			w := serve(r, http.MethodPost, "/check-email", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		r := NewRouter(&fakeChecker{err: errors.New("connection refused")})
		w := serve(r, http.MethodPost, "/check-email", `{"email":"alice@example.com"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "error", resp["status"])
	})
}

func TestCheckPasswordHandler(t *testing.T) {
	f := &fakeChecker{ranges: map[string][]models.SuffixCount{
		"F3BBBD": {
			{Suffix: "0000000000000000000000000000000000", Count: 4},
			{Suffix: "66A63D4BF1747940578EC3D0103530E21D", Count: 25},
		},
	}}
	r := NewRouter(f)

	t.Run("range", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/check-password/f3bbbd", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
		assert.Equal(t,
			"0000000000000000000000000000000000:4\r\n66A63D4BF1747940578EC3D0103530E21D:25",
			w.Body.String())
	})

	t.Run("empty set", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/check-password/ABCDEF", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("invalid prefix", func(t *testing.T) {
		for _, p := range []string{"F3BBB", "F3BBBG", "F3BBBDD"} {
			w := serve(r, http.MethodGet, "/check-password/"+p, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, p)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		r := NewRouter(&fakeChecker{err: errors.New("connection refused")})
		w := serve(r, http.MethodGet, "/check-password/ABCDEF", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestStatsAndHealth(t *testing.T) {
	f := &fakeChecker{stats: models.Stats{EmailCount: 3, PasswordCount: 2, BreachCount: 1}}
	r := NewRouter(f)

	w := serve(r, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"email_count":3,"password_count":2,"breach_count":1}`, w.Body.String())

	w = serve(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	down := NewRouter(&fakeChecker{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(down, http.MethodGet, "/api/stats", "").Code)
}

func TestRequestIDIsPreserved(t *testing.T) {
	r := NewRouter(&fakeChecker{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}
