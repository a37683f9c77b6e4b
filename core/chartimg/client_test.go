package chartimg

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/m3rciful/chartbot/chart"
	coreconfig "github.com/m3rciful/chartbot/core/config"
)

func TestFetchMiniChart(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("PNG"))
	}))
	defer srv.Close()

	c := New(coreconfig.ChartImgConfig{BaseURL: srv.URL + "/", APIKey: "secret"}, srv.Client())
	img, err := c.Fetch(context.Background(), chart.KindPrice, chart.Query{Symbol: "BTCUSD", Interval: "1h", Studies: []string{"RSI"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(img) != "PNG" {
		t.Fatalf("image = %q", img)
	}
	if gotPath != "/mini-chart" || gotAuth != "Bearer secret" {
		t.Fatalf("path=%q auth=%q", gotPath, gotAuth)
	}
	if _, ok := gotQuery["studies"]; ok {
		t.Fatalf("mini-chart must not send studies: %v", gotQuery)
	}
	if gotQuery["symbol"][0] != "BTCUSD" || gotQuery["interval"][0] != "1h" {
		t.Fatalf("query = %v", gotQuery)
	}
}

func TestFetchAdvancedChartRepeatsStudies(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte("IMG"))
	}))
	defer srv.Close()

	c := New(coreconfig.ChartImgConfig{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	q := chart.Query{Symbol: "BINANCE:ETHUSDT", Interval: "4h", Studies: []string{"RSI", "MACD"}, Style: "area"}
	if _, err := c.Fetch(context.Background(), chart.KindChart, q); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/advanced-chart" {
		t.Fatalf("path = %q", gotPath)
	}
	if !reflect.DeepEqual(gotQuery["studies"], []string{"RSI", "MACD"}) || gotQuery["style"][0] != "area" {
		t.Fatalf("query = %v", gotQuery)
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"Invalid symbol"}`))
	}))
	defer srv.Close()

	c := New(coreconfig.ChartImgConfig{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	_, err := c.Fetch(context.Background(), chart.KindPrice, chart.Query{Symbol: "NOPE", Interval: "1D"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode() != 422 || string(se.ResponseBody()) != `{"error":"Invalid symbol"}` {
		t.Fatalf("status error = %d %q", se.Status, se.Body)
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(coreconfig.ChartImgConfig{BaseURL: base, APIKey: "k"}, nil)
	_, err := c.Fetch(context.Background(), chart.KindPrice, chart.Query{Symbol: "BTC", Interval: "1D"})
	if err == nil {
		t.Fatal("expected transport error")
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Fatalf("transport failure must not be a StatusError: %v", err)
	}
}

func TestFetchUnknownKind(t *testing.T) {
	c := New(coreconfig.ChartImgConfig{APIKey: "k"}, nil)
	if _, err := c.Fetch(context.Background(), chart.Kind(9), chart.Query{}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v", err)
	}
}
