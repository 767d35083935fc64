package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsm-platform/rsm/internal/auth"
)

func newConversationRouter(h *Handler, claims *auth.AccessClaims) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if claims != nil {
				req = req.WithContext(auth.WithClaims(req.Context(), claims))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/conversations/{sessionID}/messages", h.List)
	r.Post("/conversations/{sessionID}/messages", h.Append)
	return r
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_AppendThenList(t *testing.T) {
	svc, _ := newTestService(nil)
	router := newConversationRouter(NewHandler(svc), &auth.AccessClaims{OrganizationID: 4})

	rec := serve(router, "POST", "/conversations/s1/messages",
		`{"messages":[{"role":"user","content":"bonjour"},{"role":"assistant","content":"salut"},{"role":"user","content":"ça va ?"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"data":{"length":3}}`, rec.Body.String())

	rec = serve(router, "GET", "/conversations/s1/messages?offset=1&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Data       []Message `json:"data"`
		TotalCount int       `json:"total_count"`
		Offset     int       `json:"offset"`
		Limit      int       `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 1, page.Offset)
	assert.Equal(t, 1, page.Limit)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "salut", page.Data[0].Content)
}

func TestHandler_ListIsTenantScoped(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc)

	rec := serve(newConversationRouter(h, &auth.AccessClaims{OrganizationID: 1}), "POST", "/conversations/s/messages",
		`{"messages":[{"role":"user","content":"secret"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(newConversationRouter(h, &auth.AccessClaims{OrganizationID: 2}), "GET", "/conversations/s/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_count":0`)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestHandler_AppendValidation(t *testing.T) {
	svc, _ := newTestService(nil)
	router := newConversationRouter(NewHandler(svc), &auth.AccessClaims{OrganizationID: 4})

	for _, body := range []string{
		`{broken`,
		`{"messages":[]}`,
		`{"messages":[{"role":"system","content":"x"}]}`,
		`{"messages":[{"role":"user","content":""}]}`,
	} {
		rec := serve(router, "POST", "/conversations/s1/messages", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHandler_RequiresClaims(t *testing.T) {
	svc, _ := newTestService(nil)
	router := newConversationRouter(NewHandler(svc), nil)

	assert.Equal(t, http.StatusUnauthorized, serve(router, "GET", "/conversations/s/messages", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "POST", "/conversations/s/messages", `{}`).Code)
}

func TestHandler_TenantTimeoutIs503(t *testing.T) {
	svc, store := newTestService(nil)
	store.failNext = fmt.Errorf("waiting for tenant 1: %w", context.DeadlineExceeded)
	router := newConversationRouter(NewHandler(svc), &auth.AccessClaims{OrganizationID: 1})

	rec := serve(router, "GET", "/conversations/s/messages", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	store.failNext = errors.New("disk full")
	rec = serve(router, "GET", "/conversations/s/messages", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
