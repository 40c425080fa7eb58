package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func jsonRequest(method string, path string, payload any, cookie *http.Cookie) *http.Request {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestSeriesAPICRUD(t *testing.T) {
	_, app, stub := setupTestApp(t)
	cookie := createAccount(t, app)
	stub.addSeries("s-1", "Saga", "Image")

	createRes, err := app.Test(jsonRequest(http.MethodPost, "/v1/series", map[string]any{
		"name":          "Saga",
		"komgaSeriesId": "s-1",
	}, cookie))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", createRes.StatusCode)
	}

	var created map[string]any
	if err := json.NewDecoder(createRes.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	id := int(created["id"].(float64))
	if created["isActive"] != true {
		t.Fatalf("created = %v", created)
	}

	dupRes, err := app.Test(jsonRequest(http.MethodPost, "/v1/series", map[string]any{
		"name":          "Saga duplicate",
		"komgaSeriesId": "s-1",
	}, cookie))
	if err != nil {
		t.Fatalf("duplicate request failed: %v", err)
	}
	if dupRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", dupRes.StatusCode)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/v1/series", nil)
	listReq.AddCookie(cookie)
	listRes, err := app.Test(listReq)
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	var listPayload map[string]any
	if err := json.NewDecoder(listRes.Body).Decode(&listPayload); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if items := listPayload["items"].([]any); len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	toggleRes, err := app.Test(jsonRequest(http.MethodPost, "/v1/series/"+toString(id)+"/toggle", nil, cookie))
	if err != nil {
		t.Fatalf("toggle request failed: %v", err)
	}
	var toggled map[string]any
	if err := json.NewDecoder(toggleRes.Body).Decode(&toggled); err != nil {
		t.Fatalf("decode toggle response: %v", err)
	}
	if toggled["isActive"] != false {
		t.Fatalf("toggled = %v", toggled)
	}

	activeReq := httptest.NewRequest(http.MethodGet, "/v1/series?active=true", nil)
	activeReq.AddCookie(cookie)
	activeRes, err := app.Test(activeReq)
	if err != nil {
		t.Fatalf("active list failed: %v", err)
	}
	var activePayload map[string]any
	if err := json.NewDecoder(activeRes.Body).Decode(&activePayload); err != nil {
		t.Fatalf("decode active list: %v", err)
	}
	if items := activePayload["items"].([]any); len(items) != 0 {
		t.Fatalf("inactive series leaked into the active filter: %v", items)
	}

	linkRes, err := app.Test(jsonRequest(http.MethodPut, "/v1/series/"+toString(id)+"/mylar", map[string]any{
		"mylarComicId": "101",
	}, cookie))
	if err != nil {
		t.Fatalf("link request failed: %v", err)
	}
	var linked map[string]any
	if err := json.NewDecoder(linkRes.Body).Decode(&linked); err != nil {
		t.Fatalf("decode link response: %v", err)
	}
	if linked["mylarComicId"] != "101" {
		t.Fatalf("linked = %v", linked)
	}

	deleteRes, err := app.Test(jsonRequest(http.MethodDelete, "/v1/series/"+toString(id), nil, cookie))
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	if deleteRes.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", deleteRes.StatusCode)
	}

	getRes, err := app.Test(jsonRequest(http.MethodGet, "/v1/series/"+toString(id), nil, cookie))
	if err != nil {
		t.Fatalf("get-after-delete failed: %v", err)
	}
	if getRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", getRes.StatusCode)
	}
}

func TestSeriesAPICreateLooksUpTheNameFromTheLibrary(t *testing.T) {
	_, app, stub := setupTestApp(t)
	cookie := createAccount(t, app)
	stub.addSeries("s-9", "Monstress", "Image")

	res, err := app.Test(jsonRequest(http.MethodPost, "/v1/series", map[string]any{
		"komgaSeriesId": "s-9",
	}, cookie))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}

	var created map[string]any
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created["name"] != "Monstress" || created["publisher"] != "Image" {
		t.Fatalf("library lookup missed: %v", created)
	}
}

func TestSeriesAPICreateRequiresAKomgaSeriesID(t *testing.T) {
	_, app, _ := setupTestApp(t)
	cookie := createAccount(t, app)

	res, err := app.Test(jsonRequest(http.MethodPost, "/v1/series", map[string]any{
		"name": "No ID",
	}, cookie))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
}
