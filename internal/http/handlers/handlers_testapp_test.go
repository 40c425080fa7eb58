package handlers_test

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bchapman/wednesday/internal/config"
	"github.com/bchapman/wednesday/internal/database"
	apihttp "github.com/bchapman/wednesday/internal/http"
	"github.com/bchapman/wednesday/internal/komga"
	"github.com/bchapman/wednesday/internal/pulllist"
	"github.com/bchapman/wednesday/internal/repository"
)

// komgaStub is an in-memory stand-in for the Komga API, covering the
// endpoints the handlers and the generator touch.
type komgaStub struct {
	mu        sync.Mutex
	series    map[string]map[string]any
	books     map[string][]map[string]any
	progress  map[string]map[string]any
	failBooks map[string]bool
	readLists []map[string]any
	nextList  int
}

func newKomgaStub() *komgaStub {
	return &komgaStub{
		series:    map[string]map[string]any{},
		books:     map[string][]map[string]any{},
		progress:  map[string]map[string]any{},
		failBooks: map[string]bool{},
	}
}

func (k *komgaStub) addSeries(id string, name string, publisher string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.series[id] = map[string]any{
		"id":       id,
		"name":     name,
		"metadata": map[string]any{"publisher": publisher},
	}
}

func (k *komgaStub) addBook(seriesID string, bookID string, number string, created time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.books[seriesID] = append(k.books[seriesID], map[string]any{
		"id":           bookID,
		"seriesId":     seriesID,
		"name":         "Issue " + number,
		"created":      created.UTC().Format(time.RFC3339),
		"lastModified": created.UTC().Format(time.RFC3339),
		"media":        map[string]any{"pagesCount": 24},
		"metadata":     map[string]any{"title": "", "number": number},
	})
}

// setProgress records read progress the book endpoint reports back.
func (k *komgaStub) setProgress(bookID string, page int, completed bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.progress[bookID] = map[string]any{"page": page, "completed": completed}
}

// failBook makes single-book lookups for the given id answer 500.
func (k *komgaStub) failBook(bookID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.failBooks[bookID] = true
}

func (k *komgaStub) findBook(bookID string) map[string]any {
	for _, books := range k.books {
		for _, book := range books {
			if book["id"] == bookID {
				merged := make(map[string]any, len(book)+1)
				for key, value := range book {
					merged[key] = value
				}
				if progress, ok := k.progress[bookID]; ok {
					merged["readProgress"] = progress
				}
				return merged
			}
		}
	}
	return nil
}

func (k *komgaStub) readListNames() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	names := make([]string, 0, len(k.readLists))
	for _, rl := range k.readLists {
		names = append(names, rl["name"].(string))
	}
	return names
}

func (k *komgaStub) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, payload any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/libraries", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{})
	})
	mux.HandleFunc("GET /api/v1/series", func(w http.ResponseWriter, r *http.Request) {
		k.mu.Lock()
		defer k.mu.Unlock()
		search := strings.ToLower(r.URL.Query().Get("search"))
		content := []any{}
		for _, series := range k.series {
			if search == "" || strings.Contains(strings.ToLower(series["name"].(string)), search) {
				content = append(content, series)
			}
		}
		writeJSON(w, map[string]any{"content": content})
	})
	mux.HandleFunc("GET /api/v1/series/{id}", func(w http.ResponseWriter, r *http.Request) {
		k.mu.Lock()
		defer k.mu.Unlock()
		series, ok := k.series[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, series)
	})
	mux.HandleFunc("GET /api/v1/series/{id}/books", func(w http.ResponseWriter, r *http.Request) {
		k.mu.Lock()
		defer k.mu.Unlock()
		content := []any{}
		for _, book := range k.books[r.PathValue("id")] {
			content = append(content, book)
		}
		writeJSON(w, map[string]any{"content": content})
	})
	mux.HandleFunc("GET /api/v1/readlists", func(w http.ResponseWriter, r *http.Request) {
		k.mu.Lock()
		defer k.mu.Unlock()
		content := []any{}
		for _, rl := range k.readLists {
			content = append(content, rl)
		}
		writeJSON(w, map[string]any{"content": content})
	})
	mux.HandleFunc("POST /api/v1/readlists", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Name    string   `json:"name"`
			BookIDs []string `json:"bookIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		k.mu.Lock()
		defer k.mu.Unlock()
		k.nextList++
		created := map[string]any{
			"id":      fmt.Sprintf("rl-%d", k.nextList),
			"name":    payload.Name,
			"bookIds": payload.BookIDs,
		}
		k.readLists = append(k.readLists, created)
		writeJSON(w, created)
	})
	mux.HandleFunc("DELETE /api/v1/readlists/{id}", func(w http.ResponseWriter, r *http.Request) {
		k.mu.Lock()
		defer k.mu.Unlock()
		id := r.PathValue("id")
		kept := k.readLists[:0]
		for _, rl := range k.readLists {
			if rl["id"] != id {
				kept = append(kept, rl)
			}
		}
		k.readLists = kept
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/v1/books/latest", func(w http.ResponseWriter, r *http.Request) {
		k.mu.Lock()
		defer k.mu.Unlock()
		content := []any{}
		for _, books := range k.books {
			for _, book := range books {
				content = append(content, k.findBook(book["id"].(string)))
			}
		}
		writeJSON(w, map[string]any{"content": content})
	})
	mux.HandleFunc("GET /api/v1/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		k.mu.Lock()
		defer k.mu.Unlock()
		id := r.PathValue("id")
		if k.failBooks[id] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		book := k.findBook(id)
		if book == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, book)
	})
	mux.HandleFunc("PATCH /api/v1/books/{id}/read-progress", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /api/v1/books/{id}/read-progress", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/v1/books/{id}/thumbnail", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF})
	})
	return mux
}

func setupTestApp(t *testing.T) (*sql.DB, *fiber.App, *komgaStub) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, currentFile, _, _ := runtime.Caller(0)
	baseDir := filepath.Dir(currentFile)
	repoRoot := filepath.Clean(filepath.Join(baseDir, "..", "..", ".."))
	originalWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("get working directory: %v", err)
	}
	if err := os.Chdir(repoRoot); err != nil {
		t.Fatalf("set working directory: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(originalWD) })

	migrationsPath := filepath.Join(baseDir, "..", "..", "..", "migrations")
	if err := database.ApplyMigrations(db, migrationsPath); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	stub := newKomgaStub()
	stubServer := httptest.NewServer(stub.handler())
	t.Cleanup(stubServer.Close)

	cfg := config.Config{
		AppName:                  "wednesday-test",
		AppURL:                   "http://localhost:8080",
		SecretKey:                "test-secret",
		AccessTokenExpireMinutes: 60,
		MagicLinkExpireMinutes:   15,
		Komga:                    config.KomgaConfig{URL: stubServer.URL},
		Schedule:                 config.ScheduleConfig{Timezone: "UTC"},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	library := komga.NewClient(cfg.Komga)
	generator := pulllist.NewGenerator(
		repository.NewSeriesRepository(db),
		repository.NewRunRepository(db),
		repository.NewNotificationRepository(db),
		library,
		nil,
		nil,
		logger,
		time.UTC,
	)

	app := apihttp.NewServer(cfg, db, apihttp.Dependencies{
		Komga:     library,
		Generator: generator,
		Logger:    logger,
	})
	t.Cleanup(func() { _ = app.Shutdown() })

	return db, app, stub
}

func toString(value int) string {
	return strconv.Itoa(value)
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// createAccount walks the first-run setup form and returns the session
// cookie it hands out.
func createAccount(t *testing.T, app *fiber.App) *http.Cookie {
	t.Helper()

	res, err := app.Test(formRequest("/setup", url.Values{
		"username":         {"ben"},
		"email":            {"ben@example.com"},
		"password":         {"hunter2hunter2"},
		"confirm_password": {"hunter2hunter2"},
	}), 5000)
	if err != nil {
		t.Fatalf("setup request failed: %v", err)
	}
	if res.StatusCode != http.StatusSeeOther {
		body, _ := io.ReadAll(res.Body)
		t.Fatalf("setup returned %d (body: %s)", res.StatusCode, string(body))
	}

	for _, cookie := range res.Cookies() {
		if cookie.Name == "wednesday_session" && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatal("setup did not set a session cookie")
	return nil
}
