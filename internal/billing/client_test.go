package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"
	"time"
)

var testInfo = UserInfo{
	Version:            "OsmAnd+ 4.8",
	Lang:               "de",
	FirstInstalledDays: 12,
	NumberOfStarts:     30,
	AppID:              "app-1",
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func assertUserInfo(t *testing.T, v url.Values) {
	t.Helper()
	want := map[string]string{"version": "OsmAnd+ 4.8", "lang": "de", "nd": "12", "ns": "30", "aid": "app-1"}
	for key, value := range want {
		if got := v.Get(key); got != value {
			t.Errorf("%s = %q, want %q", key, got, value)
		}
	}
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	if got := NewClient("", 0).BaseURL(); got != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", got, DefaultBaseURL)
	}
	if got := NewClient("http://example.com/", 0).BaseURL(); got != "http://example.com" {
		t.Errorf("BaseURL = %q", got)
	}
}

func TestClientRegister(t *testing.T) {
	var form url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != registerPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		r.ParseForm()
		form = r.PostForm
		w.Write([]byte(`{"userid":1234,"token":"abc"}`))
	})

	reg, err := c.Register(context.Background(), RegisterRequest{
		VisibleName:      "ann",
		HideUserName:     true,
		PreferredCountry: "Germany",
		Email:            "a@example.com",
	}, testInfo)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if reg != (Registration{UserID: "1234", Token: "abc"}) {
		t.Errorf("unexpected registration %+v", reg)
	}
	if form.Get("visibleName") != "" {
		t.Errorf("hidden user name sent: %q", form.Get("visibleName"))
	}
	if form.Get("preferredCountry") != "Germany" || form.Get("email") != "a@example.com" {
		t.Errorf("unexpected form %v", form)
	}
	assertUserInfo(t, form)
}

func TestClientRegister_LargeNumericUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"userid":9007199254740993,"token":"abc"}`))
	})

	reg, err := c.Register(context.Background(), RegisterRequest{}, testInfo)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if reg.UserID != "9007199254740993" {
		t.Errorf("user id = %q, want 9007199254740993", reg.UserID)
	}
}

func TestClientRegister_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		malformed bool
	}{
		{"missing userid", http.StatusOK, `{"token":"abc"}`, true},
		{"null token", http.StatusOK, `{"userid":"1","token":null}`, true},
		{"not json", http.StatusOK, `nope`, true},
		{"server error", http.StatusInternalServerError, `{"userid":"1","token":"t"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.Register(context.Background(), RegisterRequest{}, testInfo)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrMalformedResponse); got != tt.malformed {
				t.Errorf("malformed = %v, want %v (err %v)", got, tt.malformed, err)
			}
		})
	}
}

func TestClientSendPurchase(t *testing.T) {
	var form url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		w.Write([]byte(`{"visibleName":"Ann","email":"ann@example.com"}`))
	})

	resp, err := c.SendPurchase(context.Background(), PurchasedRequest{
		UserID:   "42",
		Token:    "tok",
		Email:    "a@example.com",
		Purchase: PurchaseInfo{SKU: SKULiveUpdatesMonthly, OrderID: "GPA.1", PurchaseToken: "pt"},
	}, testInfo)
	if err != nil {
		t.Fatalf("SendPurchase failed: %v", err)
	}

	want := map[string]string{
		"userid":        "42",
		"sku":           SKULiveUpdatesMonthly,
		"orderId":       "GPA.1",
		"purchaseToken": "pt",
		"email":         "a@example.com",
		"token":         "tok",
	}
	for key, value := range want {
		if got := form.Get(key); got != value {
			t.Errorf("%s = %q, want %q", key, got, value)
		}
	}
	assertUserInfo(t, form)

	if resp.VisibleName == nil || *resp.VisibleName != "Ann" {
		t.Errorf("VisibleName = %v", resp.VisibleName)
	}
	if resp.PreferredCountry != nil {
		t.Errorf("PreferredCountry = %q, want nil", *resp.PreferredCountry)
	}
	if resp.Email == nil || *resp.Email != "ann@example.com" {
		t.Errorf("Email = %v", resp.Email)
	}
}

func TestClientSendPurchase_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"token already used"}`))
	})
	_, err := c.SendPurchase(context.Background(), PurchasedRequest{}, testInfo)
	if !errors.Is(err, ErrPurchaseRejected) {
		t.Fatalf("expected ErrPurchaseRejected, got %v", err)
	}
}

func TestClientActiveSubscriptions(t *testing.T) {
	var query url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != activeSubscriptionsPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		query = r.URL.Query()
		w.Write([]byte(`{"annual":{"sku":"b_annual"},"monthly":{"sku":"a_monthly"},"empty":{}}`))
	})

	skus, err := c.ActiveSubscriptions(context.Background(), "net.osmand.plus", testInfo)
	if err != nil {
		t.Fatalf("ActiveSubscriptions failed: %v", err)
	}
	if want := []string{"a_monthly", "b_annual"}; !reflect.DeepEqual(skus, want) {
		t.Errorf("skus = %v, want %v", skus, want)
	}
	if query.Get("androidPackage") != "net.osmand.plus" {
		t.Errorf("androidPackage = %q", query.Get("androidPackage"))
	}
	assertUserInfo(t, query)
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := NewClient(srv.URL, time.Second)
	srv.Close()

	if _, err := c.ActiveSubscriptions(context.Background(), "pkg", testInfo); err == nil {
		t.Fatal("expected transport error")
	}
}
