package wing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/config"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/fulfillment"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/matcher"
	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/metrics"
)

var testMetrics = metrics.New("wing_test")

// portal is a fake Wing surface. Handlers are registered per path; everything
// else 404s, which exercises the interaction-point fallback.
type portal struct {
	mux       *http.ServeMux
	server    *httptest.Server
	logins    int64
	sessionOK atomic.Bool
}

func newPortal(t *testing.T) *portal {
	t.Helper()
	p := &portal{mux: http.NewServeMux()}
	p.mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&p.logins, 1)
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "seller" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "WSESSION", Value: "tok", Path: "/"})
		p.sessionOK.Store(true)
	})
	p.server = httptest.NewServer(p.mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *portal) requireSession(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("WSESSION")
		if err != nil || ck.Value != "tok" || !p.sessionOK.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}
}

func (p *portal) loginCount() int64 {
	return atomic.LoadInt64(&p.logins)
}

func newTestClient(t *testing.T, p *portal) *Client {
	t.Helper()
	client, err := NewClient(
		config.FulfillmentConfig{BaseURL: p.server.URL, RequestTimeout: 5 * time.Second},
		config.Credentials{WingUsername: "seller", WingPassword: "secret"},
		nil, logger.NewLogger(nil), testMetrics)
	require.NoError(t, err)
	return client
}

func TestAuthenticateLogsIn(t *testing.T) {
	p := newPortal(t)
	client := newTestClient(t, p)

	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, int64(1), p.loginCount())
}

func TestAuthenticateRejectedCredentials(t *testing.T) {
	p := newPortal(t)
	client, err := NewClient(
		config.FulfillmentConfig{BaseURL: p.server.URL, RequestTimeout: 5 * time.Second},
		config.Credentials{WingUsername: "seller", WingPassword: "wrong"},
		nil, logger.NewLogger(nil), testMetrics)
	require.NoError(t, err)

	err = client.Authenticate(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuth, apperrors.KindOf(err))
}

func TestListTransactionsMapsCandidates(t *testing.T) {
	p := newPortal(t)
	p.mux.HandleFunc("/api/seller/transactions", p.requireSession(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		json.NewEncoder(w).Encode(transactionsPage{Items: []transactionItem{
			{ID: "t1", ProductLabel: "Phone Case Clear", RecipientLabel: "Kim Minsoo", ReturnFiled: true},
		}})
	}))
	client := newTestClient(t, p)

	candidates, err := client.ListTransactions(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, matcher.Candidate{
		TransactionID: "t1",
		Product:       "Phone Case Clear",
		Recipient:     "Kim Minsoo",
		ReturnFiled:   true,
	}, candidates[0])
}

func TestExpiredSessionIsReplayedOnce(t *testing.T) {
	p := newPortal(t)
	var listCalls int64
	p.mux.HandleFunc("/api/seller/transactions", func(w http.ResponseWriter, r *http.Request) {
		// First authenticated call is rejected to simulate server-side expiry.
		if atomic.AddInt64(&listCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(transactionsPage{})
	})
	client := newTestClient(t, p)

	_, err := client.ListTransactions(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.loginCount(), "initial login plus one re-login")
	assert.Equal(t, int64(2), atomic.LoadInt64(&listCalls))
}

func submitRequest() fulfillment.ReturnRequest {
	return fulfillment.ReturnRequest{
		Transaction:    matcher.Candidate{TransactionID: "t1", Product: "Phone Case", Recipient: "Kim Minsoo"},
		ReasonCategory: "CHANGE_OF_MIND",
	}
}

func TestSubmitReturnHappyPath(t *testing.T) {
	p := newPortal(t)
	var reason, submit, confirm int64
	p.mux.HandleFunc("/api/seller/transactions/t1/return/reason", p.requireSession(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "CHANGE_OF_MIND", payload["reasonCategory"])
		atomic.AddInt64(&reason, 1)
	}))
	p.mux.HandleFunc("/api/seller/transactions/t1/return/submit", p.requireSession(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&submit, 1)
	}))
	p.mux.HandleFunc("/api/seller/transactions/t1/return/confirm", p.requireSession(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&confirm, 1)
	}))
	client := newTestClient(t, p)

	require.NoError(t, client.SubmitReturn(context.Background(), submitRequest()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&reason))
	assert.Equal(t, int64(1), atomic.LoadInt64(&submit))
	assert.Equal(t, int64(1), atomic.LoadInt64(&confirm))
}

func TestSubmitReturnFallsBackToAlternateEndpoints(t *testing.T) {
	p := newPortal(t)
	// Only the second interaction-point variant of each step exists.
	p.mux.HandleFunc("/api/seller/returns/t1/reason", p.requireSession(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "CHANGE_OF_MIND", payload["reason"], "alternate variant uses its own field name")
	}))
	p.mux.HandleFunc("/api/seller/returns/t1/submit", p.requireSession(func(w http.ResponseWriter, r *http.Request) {}))
	p.mux.HandleFunc("/api/seller/returns/t1/confirm", p.requireSession(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(t, p)

	require.NoError(t, client.SubmitReturn(context.Background(), submitRequest()))
}

func TestSubmitReturnAllVariantsGoneIsSurfaceDrift(t *testing.T) {
	p := newPortal(t)
	client := newTestClient(t, p)

	err := client.SubmitReturn(context.Background(), submitRequest())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindSurfaceDrift, apperrors.KindOf(err))
}

func TestSubmitReturnServerErrorIsTransient(t *testing.T) {
	p := newPortal(t)
	p.mux.HandleFunc("/api/seller/transactions/t1/return/reason", p.requireSession(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	client := newTestClient(t, p)

	err := client.SubmitReturn(context.Background(), submitRequest())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTransient, apperrors.KindOf(err))
}

func TestVerifyReturned(t *testing.T) {
	p := newPortal(t)
	p.mux.HandleFunc("/api/seller/transactions/t1", p.requireSession(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transactionDetail{ID: "t1", ReturnFiled: true})
	}))
	p.mux.HandleFunc("/api/seller/transactions/t2", p.requireSession(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transactionDetail{ID: "t2", ReturnFiled: false})
	}))
	client := newTestClient(t, p)

	filed, err := client.VerifyReturned(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, filed)

	filed, err = client.VerifyReturned(context.Background(), "t2")
	require.NoError(t, err)
	assert.False(t, filed)

	filed, err = client.VerifyReturned(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, filed, "unknown transaction reads as not filed")
}
