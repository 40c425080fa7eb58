package handlers_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHealthIsPublicAndReportsEachDependency(t *testing.T) {
	_, app, _ := setupTestApp(t)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), 10000)
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if payload["status"] != "ok" || payload["db"] != "up" || payload["komga"] != "up" {
		t.Fatalf("health = %v", payload)
	}
	if payload["mylar"] != "unconfigured" {
		t.Fatalf("mylar = %v", payload["mylar"])
	}
}

func TestSettingsSearchAndTrackFromTheForm(t *testing.T) {
	_, app, stub := setupTestApp(t)
	cookie := createAccount(t, app)
	stub.addSeries("s-1", "Saga", "Image")

	searchReq := httptest.NewRequest(http.MethodGet, "/settings/series/search?q=saga", nil)
	searchReq.AddCookie(cookie)
	searchRes, err := app.Test(searchReq, 5000)
	if err != nil {
		t.Fatalf("search request failed: %v", err)
	}
	body, _ := io.ReadAll(searchRes.Body)
	if searchRes.StatusCode != http.StatusOK || !strings.Contains(string(body), "Saga") {
		t.Fatalf("search: %d %s", searchRes.StatusCode, body)
	}

	addReq := formRequest("/settings/series", url.Values{
		"komga_series_id": {"s-1"},
	})
	addReq.AddCookie(cookie)
	addRes, err := app.Test(addReq, 5000)
	if err != nil {
		t.Fatalf("add request failed: %v", err)
	}
	body, _ = io.ReadAll(addRes.Body)
	if addRes.StatusCode != http.StatusOK || !strings.Contains(string(body), "Saga") {
		t.Fatalf("add: %d %s", addRes.StatusCode, body)
	}

	settingsReq := httptest.NewRequest(http.MethodGet, "/settings", nil)
	settingsReq.AddCookie(cookie)
	settingsRes, err := app.Test(settingsReq, 5000)
	if err != nil {
		t.Fatalf("settings request failed: %v", err)
	}
	body, _ = io.ReadAll(settingsRes.Body)
	if !strings.Contains(string(body), "Saga") {
		t.Fatalf("tracked series missing from settings: %s", body)
	}
}
