package mwapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew_UnknownVersion(t *testing.T) {
	t.Parallel()

	_, err := New("2.0", "https://wiki.example.org")
	if !IsNotSupported(err) {
		t.Fatalf("New(2.0) error = %v, want NotSupportedError", err)
	}
}

func TestV131EditPage_RetryOnBadToken(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	var editCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}

		switch r.Form.Get("action") {
		case "query":
			if r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "csrf" {
				n := tokenCalls.Add(1)
				tok := "CSRF_1"
				if n >= 2 {
					tok = "CSRF_2"
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"query": map[string]any{
						"tokens": map[string]any{
							"csrftoken": tok,
						},
					},
				})
				return
			}
		case "edit":
			editCalls.Add(1)
			if r.Form.Get("token") != "CSRF_2" {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code": "badtoken",
						"info": "bad token",
					},
				})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"edit": map[string]any{"result": "Success"},
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code": "badtest",
				"info": "unhandled request",
			},
		})
	}))
	t.Cleanup(srv.Close)

	api, err := New("1.31", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := api.EditPage(testContext(t), "Sandbox", "hello", "test"); err != nil {
		t.Fatalf("EditPage: %v", err)
	}
	if got := tokenCalls.Load(); got != 2 {
		t.Fatalf("token calls = %d, want 2", got)
	}
	if got := editCalls.Load(); got != 2 {
		t.Fatalf("edit calls = %d, want 2", got)
	}
}

func TestV131EditPage_SingleRetryThenFail(t *testing.T) {
	t.Parallel()

	var editCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		switch r.Form.Get("action") {
		case "query":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{
					"tokens": map[string]any{
						"csrftoken": "CSRF",
					},
				},
			})
		case "edit":
			editCalls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"code": "badtoken",
					"info": "bad token",
				},
			})
		}
	}))
	t.Cleanup(srv.Close)

	api, err := NewV131(srv.URL)
	if err != nil {
		t.Fatalf("NewV131: %v", err)
	}

	err = api.EditPage(testContext(t), "Sandbox", "hello", "")
	if err == nil {
		t.Fatalf("EditPage succeeded, want badtoken error")
	}
	if got := editCalls.Load(); got != 2 {
		t.Fatalf("edit calls = %d, want 2 (exactly one retry)", got)
	}
}

func TestV131Login_CookiePersists(t *testing.T) {
	t.Parallel()

	var sawCookieOnCSRFTokens atomic.Bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		action := r.Form.Get("action")
		if action == "query" && r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "login" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{
					"tokens": map[string]any{
						"logintoken": "LOGIN_TOKEN",
					},
				},
			})
			return
		}
		if action == "login" {
			if r.Form.Get("lgtoken") != "LOGIN_TOKEN" {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"login": map[string]any{
						"result": "WrongToken",
					},
				})
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "1", Path: "/"})
			_ = json.NewEncoder(w).Encode(map[string]any{
				"login": map[string]any{
					"result":     "Success",
					"lguserid":   1,
					"lgusername": "UserA",
				},
			})
			return
		}
		if action == "query" && r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "csrf" {
			if strings.Contains(r.Header.Get("Cookie"), "session=1") {
				sawCookieOnCSRFTokens.Store(true)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{
					"tokens": map[string]any{
						"csrftoken": "CSRF_TOKEN",
					},
				},
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code": "badtest",
				"info": "unhandled request",
			},
		})
	}))
	t.Cleanup(srv.Close)

	api, err := NewV131(srv.URL)
	if err != nil {
		t.Fatalf("NewV131: %v", err)
	}
	ctx := testContext(t)

	if err := api.Login(ctx, "UserA", "pass"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := api.token(ctx, "csrf"); err != nil {
		t.Fatalf("token(csrf): %v", err)
	}
	if !sawCookieOnCSRFTokens.Load() {
		t.Fatalf("expected session cookie to be sent after login")
	}
}

func TestV131Login_WrongPassword(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		if r.Form.Get("meta") == "tokens" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{
					"tokens": map[string]any{
						"logintoken": "LOGIN_TOKEN",
					},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"login": map[string]any{
				"result": "Failed",
				"reason": "Incorrect username or password entered.",
			},
		})
	}))
	t.Cleanup(srv.Close)

	api, err := NewV131(srv.URL)
	if err != nil {
		t.Fatalf("NewV131: %v", err)
	}

	err = api.Login(testContext(t), "UserA", "wrong")
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Login error = %v, want AuthenticationError", err)
	}
	if authErr.Result != "Failed" {
		t.Fatalf("Result = %q, want %q", authErr.Result, "Failed")
	}
}

func TestV131QueryList_Continuation(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		if got := r.Form.Get("formatversion"); got != "2" {
			t.Errorf("formatversion = %q, want %q", got, "2")
		}
		switch calls.Add(1) {
		case 1:
			if got := r.Form.Get("aicontinue"); got != "" {
				t.Errorf("first request aicontinue = %q, want empty", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"continue": map[string]any{
					"aicontinue": "C.png",
					"continue":   "-||",
				},
				"query": map[string]any{
					"allimages": []any{
						map[string]any{"title": "File:A.png", "url": "https://img.example.org/A.png"},
						map[string]any{"title": "File:B.png", "url": "https://img.example.org/B.png"},
					},
				},
			})
		default:
			if got := r.Form.Get("aicontinue"); got != "C.png" {
				t.Errorf("second request aicontinue = %q, want %q", got, "C.png")
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{
					"allimages": []any{
						map[string]any{"title": "File:C.png", "url": "https://img.example.org/C.png"},
					},
				},
			})
		}
	}))
	t.Cleanup(srv.Close)

	api, err := New("1.31", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	images, err := AllImages(api, 2).Collect(testContext(t))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("API calls = %d, want 2", got)
	}
	want := []string{"File:A.png", "File:B.png", "File:C.png"}
	if len(images) != len(want) {
		t.Fatalf("got %d images, want %d", len(images), len(want))
	}
	for i, title := range want {
		if images[i].Title != title {
			t.Fatalf("images[%d].Title = %q, want %q", i, images[i].Title, title)
		}
	}
}

func TestV131DeletePage_AuthorizationError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		if r.Form.Get("meta") == "tokens" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{
					"tokens": map[string]any{
						"csrftoken": "CSRF",
					},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code": "permissiondenied",
				"info": "You do not have permission to delete this page.",
			},
		})
	}))
	t.Cleanup(srv.Close)

	api, err := NewV131(srv.URL)
	if err != nil {
		t.Fatalf("NewV131: %v", err)
	}

	err = api.DeletePage(testContext(t), "Main Page", "cleanup")
	if !IsAuthorizationError(err) {
		t.Fatalf("DeletePage error = %v, want AuthorizationError", err)
	}
}

func TestV131UploadFile_WarningBecomesUploadError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			_ = r.ParseMultipartForm(32 << 20)
		} else {
			_ = r.ParseForm()
		}

		if r.Form.Get("meta") == "tokens" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{
					"tokens": map[string]any{
						"csrftoken": "CSRF",
					},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"upload": map[string]any{
				"result": "Warning",
				"warnings": map[string]any{
					"duplicate": []any{"Existing.png"},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	api, err := NewV131(srv.URL)
	if err != nil {
		t.Fatalf("NewV131: %v", err)
	}

	err = api.UploadFile(testContext(t), "New.png", strings.NewReader("png-bytes"), "image/png", false)
	if !IsUploadError(err) {
		t.Fatalf("UploadFile error = %v, want UploadError", err)
	}
	var upErr *UploadError
	if errors.As(err, &upErr) && upErr.Code != "duplicate" {
		t.Fatalf("UploadError.Code = %q, want %q", upErr.Code, "duplicate")
	}
}

func TestV131UploadFile_LargeBodyArrivesIntact(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("wiki-image-bytes"), 1<<16) // 1 MiB

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				t.Errorf("ParseMultipartForm: %v", err)
			}
		} else {
			_ = r.ParseForm()
		}

		if r.Form.Get("meta") == "tokens" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{
					"tokens": map[string]any{
						"csrftoken": "CSRF",
					},
				},
			})
			return
		}

		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		got, err := io.ReadAll(f)
		if err != nil {
			t.Errorf("read upload: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("upload body mangled: got %d bytes, want %d", len(got), len(payload))
		}
		if r.Form.Get("ignorewarnings") != "1" {
			t.Errorf("ignorewarnings = %q, want %q", r.Form.Get("ignorewarnings"), "1")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"upload": map[string]any{"result": "Success"},
		})
	}))
	t.Cleanup(srv.Close)

	api, err := NewV131(srv.URL)
	if err != nil {
		t.Fatalf("NewV131: %v", err)
	}

	err = api.UploadFile(testContext(t), "Big.png", bytes.NewReader(payload), "image/png", true)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
}

func TestPageContent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index.php" {
			t.Errorf("path = %q, want /index.php", r.URL.Path)
		}
		if r.URL.Query().Get("action") != "raw" {
			t.Errorf("action = %q, want raw", r.URL.Query().Get("action"))
		}
		switch r.URL.Query().Get("title") {
		case "Sandbox":
			_, _ = w.Write([]byte("== Hello ==\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	api, err := New("1.31", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := testContext(t)

	text, err := api.PageContent(ctx, "Sandbox")
	if err != nil {
		t.Fatalf("PageContent: %v", err)
	}
	if text != "== Hello ==\n" {
		t.Fatalf("PageContent = %q", text)
	}

	_, err = api.PageContent(ctx, "Missing")
	if !IsItemNotFound(err) {
		t.Fatalf("PageContent(Missing) error = %v, want ItemNotFoundError", err)
	}
}

func TestDownloadFile_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	api, err := New("1.31", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = api.DownloadFile(testContext(t), srv.URL+"/missing.png", io.Discard)
	if !IsItemNotFound(err) {
		t.Fatalf("DownloadFile error = %v, want ItemNotFoundError", err)
	}
}

func TestDo_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	api, err := New("1.31", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = api.NamespaceList(testContext(t))
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("NamespaceList error = %v, want RateLimitError", err)
	}
}

func TestNamespaceList_SortedNonVirtual(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{
				"namespaces": map[string]any{
					"14": map[string]any{"id": 14},
					"-1": map[string]any{"id": -1},
					"0":  map[string]any{"id": 0},
					"6":  map[string]any{"id": 6},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	api, err := New("1.31", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ids, err := api.NamespaceList(testContext(t))
	if err != nil {
		t.Fatalf("NamespaceList: %v", err)
	}
	want := []int{0, 6, 14}
	if len(ids) != len(want) {
		t.Fatalf("NamespaceList = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("NamespaceList = %v, want %v", ids, want)
		}
	}
}
