package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetch_ParsesAndScales(t *testing.T) {
	var gotCity string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCity = r.URL.Query().Get("city")
		_, _ = w.Write([]byte(`[
			{"USD_in":"3.1000","USD_out":"3.2000",
			 "RUB_in":"3.4500","RUB_out":"3.6000",
			 "CNY_in":"4.2000","CNY_out":"4.4000"},
			{"USD_in":"9","USD_out":"9","RUB_in":"9","RUB_out":"9","CNY_in":"9","CNY_out":"9"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	r, err := c.Fetch(context.Background(), "Minsk")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotCity != "Minsk" {
		t.Fatalf("city query param = %q", gotCity)
	}

	// Only the first branch counts; RUB scaled by 1/100, CNY by 1/10.
	if r.USDBuy != 3.10 || r.USDSell != 3.20 {
		t.Fatalf("USD = %v/%v", r.USDBuy, r.USDSell)
	}
	if r.RUBBuy != 0.0345 || r.RUBSell != 0.036 {
		t.Fatalf("RUB = %v/%v", r.RUBBuy, r.RUBSell)
	}
	if r.CNYBuy != 0.42 || r.CNYSell != 0.44 {
		t.Fatalf("CNY = %v/%v", r.CNYBuy, r.CNYSell)
	}
}

func TestFetch_EmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Fetch(context.Background(), "Minsk"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestFetch_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Fetch(context.Background(), "Minsk"); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestFetch_BadNumericField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"USD_in":"abc","USD_out":"1","RUB_in":"1","RUB_out":"1","CNY_in":"1","CNY_out":"1"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Fetch(context.Background(), "Minsk"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFormat(t *testing.T) {
	r := Rates{USDBuy: 3.1, USDSell: 3.2, RUBBuy: 0.0345, RUBSell: 0.036, CNYBuy: 0.42, CNYSell: 0.44}
	out := r.Format("Brest")
	if !strings.Contains(out, "Brest") || !strings.Contains(out, "3.1000/3.2000") {
		t.Fatalf("unexpected format output: %q", out)
	}
}
