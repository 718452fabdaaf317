package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamingplus/internal/domain"
	"streamingplus/internal/domain/payments"
	"streamingplus/internal/templates"

	"github.com/gorilla/websocket"
)

func (e *testEnv) openCheckout(t *testing.T, bannerID int64, email string) checkoutResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/checkout", openCheckoutRequest{BannerID: bannerID, Email: email}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("open checkout = %d: %s", rec.Code, rec.Body)
	}
	var resp checkoutResponse
	decode(t, rec, &resp)
	return resp
}

func (e *testEnv) runCountdown(t *testing.T, sessionID string) {
	t.Helper()
	s, err := e.srv.checkout.Get(sessionID)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	for i := 0; i < payments.CountdownSeconds; i++ {
		s.Tick()
	}
}

func TestCheckoutPurchaseFlow(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBanner(t, "final", "29.90", func(b *domain.Banner) { b.PixKey = "banner-pix" })

	opened := env.openCheckout(t, b.ID, " U@Test.com ")
	session := opened.Session
	if session == nil || session.State != payments.StateAwaiting || session.SecondsRemaining != payments.CountdownSeconds {
		t.Fatalf("session = %+v", session)
	}
	if session.Email != "u@test.com" || session.PixKey != "banner-pix" || !session.Amount.Equal(b.Price) {
		t.Errorf("session = %+v", session)
	}
	if opened.QRCodeURL == "" || opened.SocketURL == "" || !strings.HasPrefix(opened.PixPayload, "pix:") {
		t.Errorf("links = %+v", opened)
	}

	confirmPath := fmt.Sprintf("/api/checkout/%s/confirm", session.ID)
	if rec := env.do(t, http.MethodPost, confirmPath, nil, ""); rec.Code != http.StatusConflict {
		t.Fatalf("premature confirm = %d", rec.Code)
	}

	env.runCountdown(t, session.ID)

	var status checkoutResponse
	decode(t, env.do(t, http.MethodGet, "/api/checkout/"+session.ID, nil, ""), &status)
	if status.Session.State != payments.StateVerifiable {
		t.Fatalf("state after countdown = %s", status.Session.State)
	}

	// the banner price changes after checkout opened; the purchase keeps the charged amount
	b.Price = b.Price.Add(b.Price)
	if err := env.repos.Banners.Update(context.Background(), b); err != nil {
		t.Fatalf("update banner: %v", err)
	}

	rec := env.do(t, http.MethodPost, confirmPath, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm = %d: %s", rec.Code, rec.Body)
	}
	var confirmed confirmResponse
	decode(t, rec, &confirmed)
	if confirmed.Session.State != payments.StateConfirmed || confirmed.PurchaseID == 0 {
		t.Fatalf("confirm = %+v", confirmed)
	}

	purchase, err := env.repos.Purchases.GetByID(context.Background(), confirmed.PurchaseID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !purchase.Price.Equal(session.Amount) || !purchase.ExpirationDate.Equal(b.ExpirationDate) || purchase.BannerTitle != "final" {
		t.Errorf("purchase = %+v", purchase)
	}

	if rec := env.do(t, http.MethodGet, confirmed.WatchURL, nil, ""); rec.Code != http.StatusOK {
		t.Errorf("watch after purchase = %d", rec.Code)
	}

	// the session is gone once confirmed
	if rec := env.do(t, http.MethodPost, confirmPath, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second confirm = %d", rec.Code)
	}

	txs, err := env.repos.Transactions.List(context.Background(), 10)
	if err != nil || len(txs) != 1 || txs[0].Status != domain.TransactionConfirmed || txs[0].PurchaseID != confirmed.PurchaseID {
		t.Errorf("transactions = %+v, %v", txs, err)
	}

	env.srv.background.Wait()
	sent := env.outbox.messages()
	if len(sent) != 1 || sent[0].To != "u@test.com" || !sent[0].HTML {
		t.Fatalf("receipts = %+v", sent)
	}
	if !strings.Contains(sent[0].Body, templates.FormatMoney(session.Amount)) {
		t.Errorf("receipt body missing amount: %s", sent[0].Body)
	}

	// a viewer who already paid is sent straight to the player
	rec = env.do(t, http.MethodPost, "/api/checkout", openCheckoutRequest{BannerID: b.ID, Email: "u@test.com"}, "")
	var again checkoutResponse
	decode(t, rec, &again)
	if rec.Code != http.StatusOK || !again.HasAccess || again.Session != nil {
		t.Errorf("reopen after purchase = %d %+v", rec.Code, again)
	}
}

func TestOpenCheckoutRejections(t *testing.T) {
	env := newTestEnv(t)
	paid := env.createBanner(t, "paid", "10", nil)
	hidden := env.createBanner(t, "hidden", "10", func(b *domain.Banner) { b.Active = false })

	tests := []struct {
		name string
		req  openCheckoutRequest
		want int
	}{
		{"invalid email", openCheckoutRequest{BannerID: paid.ID, Email: "nope"}, http.StatusBadRequest},
		{"missing banner", openCheckoutRequest{BannerID: 999, Email: "u@test.com"}, http.StatusNotFound},
		{"banner not on sale", openCheckoutRequest{BannerID: hidden.ID, Email: "u@test.com"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, "/api/checkout", tt.req, ""); rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}

	if rec := env.do(t, http.MethodPost, "/api/checkout", []byte(`{"banner_id":1,"email":"u@test.com","paid":true}`), ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field = %d", rec.Code)
	}
	if env.srv.checkout.Len() != 0 {
		t.Errorf("rejected requests opened sessions")
	}
}

func TestOpenCheckoutFreeBanner(t *testing.T) {
	env := newTestEnv(t)
	free := env.createBanner(t, "free", "0", nil)

	rec := env.do(t, http.MethodPost, "/api/checkout", openCheckoutRequest{BannerID: free.ID, Email: "u@test.com"}, "")
	var resp checkoutResponse
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || !resp.HasAccess || resp.Session != nil {
		t.Errorf("free checkout = %d %+v", rec.Code, resp)
	}

	purchases, _ := env.repos.Purchases.List(context.Background())
	if len(purchases) != 0 {
		t.Errorf("free banner recorded purchases: %+v", purchases)
	}
}

func TestCheckoutPixKeyFallback(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBanner(t, "paid", "10", nil)

	if got := env.openCheckout(t, b.ID, "u@test.com").Session.PixKey; got != "config-pix" {
		t.Errorf("without setting = %q", got)
	}

	if err := env.repos.Settings.Set(context.Background(), domain.SettingDefaultPixKey, "settings-pix"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := env.openCheckout(t, b.ID, "u@test.com").Session.PixKey; got != "settings-pix" {
		t.Errorf("with setting = %q", got)
	}
}

func TestCancelCheckout(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBanner(t, "paid", "10", nil)
	session := env.openCheckout(t, b.ID, "u@test.com").Session

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/checkout/%s/cancel", session.ID), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel = %d", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/checkout/%s/confirm", session.ID), nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("confirm after cancel = %d", rec.Code)
	}

	txs, _ := env.repos.Transactions.List(context.Background(), 0)
	if len(txs) != 1 || txs[0].Status != domain.TransactionCancelled || txs[0].PurchaseID != 0 {
		t.Errorf("transactions = %+v", txs)
	}
}

func TestConfirmCheckoutAfterOfferEnded(t *testing.T) {
	tests := []struct {
		name  string
		endOf func(t *testing.T, env *testEnv, b *domain.Banner)
	}{
		{"banner expired during countdown", func(t *testing.T, env *testEnv, b *domain.Banner) {
			env.clock.Set(t0.Add(61 * time.Second))
		}},
		{"expiration moved earlier", func(t *testing.T, env *testEnv, b *domain.Banner) {
			b.ExpirationDate = t0.Add(10 * time.Second)
			env.clock.Set(t0.Add(61 * time.Second))
			if err := env.repos.Banners.Update(context.Background(), b); err != nil {
				t.Fatalf("update banner: %v", err)
			}
		}},
		{"banner deleted", func(t *testing.T, env *testEnv, b *domain.Banner) {
			if err := env.repos.Banners.Delete(context.Background(), b.ID); err != nil {
				t.Fatalf("delete banner: %v", err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			b := env.createBanner(t, "late", "10", func(b *domain.Banner) {
				b.ExpirationDate = t0.Add(90 * time.Second)
			})

			session := env.openCheckout(t, b.ID, "u@test.com").Session
			env.runCountdown(t, session.ID)
			tt.endOf(t, env, b)

			confirmPath := fmt.Sprintf("/api/checkout/%s/confirm", session.ID)
			if rec := env.do(t, http.MethodPost, confirmPath, nil, ""); rec.Code != http.StatusGone {
				t.Fatalf("confirm = %d: %s", rec.Code, rec.Body)
			}

			// the session is closed, not left verifiable
			if rec := env.do(t, http.MethodGet, "/api/checkout/"+session.ID, nil, ""); rec.Code != http.StatusNotFound {
				t.Errorf("status after offer ended = %d", rec.Code)
			}
			if rec := env.do(t, http.MethodPost, confirmPath, nil, ""); rec.Code != http.StatusNotFound {
				t.Errorf("retry confirm = %d", rec.Code)
			}

			purchases, _ := env.ledger.FindByEmail(context.Background(), "u@test.com")
			if len(purchases) != 0 {
				t.Errorf("purchases = %+v", purchases)
			}
			txs, _ := env.repos.Transactions.List(context.Background(), 0)
			if len(txs) != 1 || txs[0].Status != domain.TransactionCancelled || txs[0].ID != session.ID {
				t.Errorf("transactions = %+v", txs)
			}
		})
	}
}

func TestOpenCheckoutClosingSoon(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBanner(t, "closing", "10", func(b *domain.Banner) {
		b.ExpirationDate = t0.Add(30 * time.Second)
	})

	rec := env.do(t, http.MethodPost, "/api/checkout", openCheckoutRequest{BannerID: b.ID, Email: "u@test.com"}, "")
	if rec.Code != http.StatusGone {
		t.Errorf("open = %d: %s", rec.Code, rec.Body)
	}
	if env.srv.checkout.Len() != 0 {
		t.Errorf("session opened for a banner closing before the countdown ends")
	}

	// exactly enough time left is fine
	b.ExpirationDate = t0.Add(payments.CountdownSeconds * time.Second)
	if err := env.repos.Banners.Update(context.Background(), b); err != nil {
		t.Fatalf("update banner: %v", err)
	}
	env.openCheckout(t, b.ID, "u@test.com")
}

func TestOpenCheckoutTwiceRestartsSession(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBanner(t, "paid", "10", nil)

	first := env.openCheckout(t, b.ID, "u@test.com").Session
	env.runCountdown(t, first.ID)

	again := env.openCheckout(t, b.ID, "U@test.com").Session
	if again.ID != first.ID {
		t.Errorf("reopen created session %s, want %s", again.ID, first.ID)
	}
	if again.State != payments.StateAwaiting || again.SecondsRemaining != payments.CountdownSeconds {
		t.Errorf("reopened session = %+v", again)
	}
	if env.srv.checkout.Len() != 1 {
		t.Errorf("open sessions = %d, want 1", env.srv.checkout.Len())
	}
}

func TestCheckoutQRCode(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBanner(t, "paid", "10", nil)
	opened := env.openCheckout(t, b.ID, "u@test.com")

	rec := env.do(t, http.MethodGet, opened.QRCodeURL, nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("qr = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), "\x89PNG") {
		t.Error("body is not a PNG")
	}

	if rec := env.do(t, http.MethodGet, "/api/checkout/nope/qr.png", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session = %d", rec.Code)
	}
}

func TestCheckoutSocketDrivesCountdown(t *testing.T) {
	env := newTestEnv(t)
	env.srv.tickRate = time.Millisecond
	b := env.createBanner(t, "paid", "10", nil)
	opened := env.openCheckout(t, b.ID, "u@test.com")

	ts := httptest.NewServer(env.srv.GetRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + opened.SocketURL
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var view payments.SessionView
	for view.State != payments.StateVerifiable {
		if err := conn.ReadJSON(&view); err != nil {
			t.Fatalf("ReadJSON while counting down: %v", err)
		}
	}

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/checkout/%s/confirm", opened.Session.ID), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm = %d: %s", rec.Code, rec.Body)
	}

	for view.State != payments.StateConfirmed {
		if err := conn.ReadJSON(&view); err != nil {
			t.Fatalf("ReadJSON after confirm: %v", err)
		}
	}

	// the server closes the socket once the session is finished
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestCheckoutSocketUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.GetRouter())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/checkout/nope/ws", nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %+v", resp)
	}
}
