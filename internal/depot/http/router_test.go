package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	netHTTP "net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/quartzlab/depot/internal/depot/blob"
	"github.com/quartzlab/depot/internal/depot/domain"
	depothttp "github.com/quartzlab/depot/internal/depot/http"
	"github.com/quartzlab/depot/internal/depot/search"
	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/internal/depot/store/drivers/sqlite"
	"github.com/quartzlab/depot/pkg/cryptox"
	"github.com/quartzlab/depot/pkg/idx"
	"github.com/quartzlab/depot/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "test-webhook-secret"

type fixture struct {
	srv   *httptest.Server
	blobs *blob.MemoryStore
	index *search.MemoryIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "depot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	blobs := blob.NewMemoryStore()
	index := search.NewMemoryIndex()

	signer, verifier, err := jwtx.NewCodec("router-test-secret-with-32-bytes!", "depot-test")
	require.NoError(t, err)

	session := &service.LocalSession{
		Store:      st,
		Signer:     signer,
		Verifier:   verifier,
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		RefreshTTL: jwtx.DefaultRefreshTokenTTL,
		Issuer:     "depot-test",
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := depothttp.NewRouter("test", st, blobs, index, logger)
	r.Session = session
	r.BucketsService = &service.Buckets{Blobs: blobs, Store: st, Search: index}
	r.FilesService = &service.Files{Blobs: blobs, Store: st, Search: index}
	r.SearchService = &service.Search{Index: index}
	r.RefreshTTL = jwtx.DefaultRefreshTokenTTL
	r.WebhookSecret = webhookSecret
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	for _, u := range []struct{ username, role string }{
		{"root", jwtx.RoleAdmin},
		{"alice", jwtx.RoleUser},
		{"bob", jwtx.RoleUser},
	} {
		hash, err := cryptox.HashPassword(u.username + "-pw")
		require.NoError(t, err)
		require.NoError(t, st.Users().CreateUser(context.Background(), domain.User{
			ID:           idx.New().String(),
			Username:     u.username,
			PasswordHash: hash,
			Role:         u.role,
		}))
	}

	return &fixture{srv: srv, blobs: blobs, index: index}
}

// login returns the access token and the refresh cookie.
func (f *fixture) login(t *testing.T, username string) (string, *netHTTP.Cookie) {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": username + "-pw",
	})

	res, err := netHTTP.Post(f.srv.URL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, netHTTP.StatusOK, res.StatusCode)

	var pair struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&pair))
	require.NotEmpty(t, pair.AccessToken)

	for _, c := range res.Cookies() {
		if c.Name == "refresh_token" {
			require.True(t, c.HttpOnly)
			require.Equal(t, "/v1/auth", c.Path)
			return pair.AccessToken, c
		}
	}
	t.Fatal("no refresh cookie set")
	return "", nil
}

func (f *fixture) do(t *testing.T, method, path, token string, body io.Reader) *netHTTP.Response {
	t.Helper()

	req, err := netHTTP.NewRequest(method, f.srv.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := netHTTP.DefaultClient.Do(req)
	require.NoError(t, err)
	return res
}

func (f *fixture) upload(t *testing.T, token, bucket, prefix, filename, content string) *netHTTP.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if prefix != "" {
		require.NoError(t, mw.WriteField("prefix", prefix))
	}
	fw, err := mw.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := netHTTP.NewRequest(netHTTP.MethodPost,
		f.srv.URL+"/v1/buckets/"+bucket+"/files", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := netHTTP.DefaultClient.Do(req)
	require.NoError(t, err)
	return res
}

func TestAuthFlow(t *testing.T) {
	f := newFixture(t)

	token, cookie := f.login(t, "alice")

	t.Run("me returns the identity", func(t *testing.T) {
		res := f.do(t, netHTTP.MethodGet, "/v1/auth/me", token, nil)
		defer res.Body.Close()
		require.Equal(t, netHTTP.StatusOK, res.StatusCode)

		var id struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&id))
		require.Equal(t, "alice", id.Username)
		require.Equal(t, jwtx.RoleUser, id.Role)
	})

	t.Run("refresh rotates via cookie", func(t *testing.T) {
		req, err := netHTTP.NewRequest(netHTTP.MethodPost, f.srv.URL+"/v1/auth/refresh", nil)
		require.NoError(t, err)
		req.AddCookie(cookie)

		res, err := netHTTP.DefaultClient.Do(req)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, netHTTP.StatusOK, res.StatusCode)

		var pair struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&pair))
		require.NotEmpty(t, pair.AccessToken)
		// The refresh credential never appears in the body.
		require.Empty(t, pair.RefreshToken)

		// Old cookie was consumed by the rotation.
		req, err = netHTTP.NewRequest(netHTTP.MethodPost, f.srv.URL+"/v1/auth/refresh", nil)
		require.NoError(t, err)
		req.AddCookie(cookie)

		res2, err := netHTTP.DefaultClient.Do(req)
		require.NoError(t, err)
		defer res2.Body.Close()
		require.Equal(t, netHTTP.StatusUnauthorized, res2.StatusCode)
	})

	t.Run("refresh without cookie", func(t *testing.T) {
		res := f.do(t, netHTTP.MethodPost, "/v1/auth/refresh", "", nil)
		defer res.Body.Close()
		require.Equal(t, netHTTP.StatusUnauthorized, res.StatusCode)
	})

	t.Run("bad credentials are generic", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"username": "alice", "password": "nope"})
		res, err := netHTTP.Post(f.srv.URL+"/v1/auth/login", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, netHTTP.StatusUnauthorized, res.StatusCode)

		raw, _ := io.ReadAll(res.Body)
		require.JSONEq(t, `{"error":"unauthorized"}`, string(raw))
	})
}

func TestLogoutClearsCookie(t *testing.T) {
	f := newFixture(t)

	_, cookie := f.login(t, "bob")

	req, err := netHTTP.NewRequest(netHTTP.MethodPost, f.srv.URL+"/v1/auth/logout", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)

	res, err := netHTTP.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, netHTTP.StatusNoContent, res.StatusCode)

	cleared := false
	for _, c := range res.Cookies() {
		if c.Name == "refresh_token" && c.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared)

	// The token is dead now.
	req, err = netHTTP.NewRequest(netHTTP.MethodPost, f.srv.URL+"/v1/auth/refresh", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)

	res2, err := netHTTP.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res2.Body.Close()
	require.Equal(t, netHTTP.StatusUnauthorized, res2.StatusCode)
}

func TestBucketEndpoints(t *testing.T) {
	f := newFixture(t)

	adminToken, _ := f.login(t, "root")
	userToken, _ := f.login(t, "alice")

	t.Run("bucket lifecycle is admin only", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"name":"docs"}`))
		res := f.do(t, netHTTP.MethodPost, "/v1/buckets", userToken, body)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusForbidden, res.StatusCode)

		body = bytes.NewReader([]byte(`{"name":"docs"}`))
		res = f.do(t, netHTTP.MethodPost, "/v1/buckets", adminToken, body)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusCreated, res.StatusCode)

		res = f.do(t, netHTTP.MethodDelete, "/v1/buckets/docs", userToken, nil)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusForbidden, res.StatusCode)
	})

	t.Run("any authenticated caller lists", func(t *testing.T) {
		res := f.do(t, netHTTP.MethodGet, "/v1/buckets", userToken, nil)
		defer res.Body.Close()
		require.Equal(t, netHTTP.StatusOK, res.StatusCode)

		var buckets []domain.BucketInfo
		require.NoError(t, json.NewDecoder(res.Body).Decode(&buckets))
		require.Len(t, buckets, 1)
	})

	t.Run("anonymous is rejected", func(t *testing.T) {
		res := f.do(t, netHTTP.MethodGet, "/v1/buckets", "", nil)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusUnauthorized, res.StatusCode)
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"name":"docs"}`))
		res := f.do(t, netHTTP.MethodPost, "/v1/buckets", adminToken, body)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusConflict, res.StatusCode)
	})

	t.Run("bad name is a 400", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"name":"NOT OK"}`))
		res := f.do(t, netHTTP.MethodPost, "/v1/buckets", adminToken, body)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusBadRequest, res.StatusCode)
	})
}

func TestFileEndpoints(t *testing.T) {
	f := newFixture(t)

	adminToken, _ := f.login(t, "root")
	aliceToken, _ := f.login(t, "alice")
	bobToken, _ := f.login(t, "bob")

	body := bytes.NewReader([]byte(`{"name":"docs"}`))
	res := f.do(t, netHTTP.MethodPost, "/v1/buckets", adminToken, body)
	res.Body.Close()
	require.Equal(t, netHTTP.StatusCreated, res.StatusCode)

	t.Run("upload and list with canDelete", func(t *testing.T) {
		res := f.upload(t, aliceToken, "docs", "reports/", "q1.txt", "first quarter")
		defer res.Body.Close()
		require.Equal(t, netHTTP.StatusCreated, res.StatusCode)

		var infos []domain.ObjectInfo
		require.NoError(t, json.NewDecoder(res.Body).Decode(&infos))
		require.Len(t, infos, 1)
		require.Equal(t, "reports/q1.txt", infos[0].Key)

		listRes := f.do(t, netHTTP.MethodGet, "/v1/buckets/docs/files?prefix=reports/&recursive=true", bobToken, nil)
		defer listRes.Body.Close()
		require.Equal(t, netHTTP.StatusOK, listRes.StatusCode)

		var entries []struct {
			Name      string `json:"name"`
			OwnerName string `json:"ownerName"`
			CanDelete bool   `json:"canDelete"`
		}
		require.NoError(t, json.NewDecoder(listRes.Body).Decode(&entries))
		require.Len(t, entries, 1)
		require.Equal(t, "alice", entries[0].OwnerName)
		require.False(t, entries[0].CanDelete)
	})

	t.Run("upload to missing bucket", func(t *testing.T) {
		res := f.upload(t, aliceToken, "ghost", "", "x.txt", "x")
		res.Body.Close()
		require.Equal(t, netHTTP.StatusNotFound, res.StatusCode)
	})

	t.Run("download streams the object", func(t *testing.T) {
		res := f.do(t, netHTTP.MethodGet, "/v1/buckets/docs/object?key=reports/q1.txt", bobToken, nil)
		defer res.Body.Close()
		require.Equal(t, netHTTP.StatusOK, res.StatusCode)

		data, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.Equal(t, "first quarter", string(data))
		require.Contains(t, res.Header.Get("Content-Disposition"), "q1.txt")
	})

	t.Run("foreign delete is forbidden", func(t *testing.T) {
		res := f.do(t, netHTTP.MethodDelete, "/v1/buckets/docs/key?key=reports/q1.txt", bobToken, nil)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusForbidden, res.StatusCode)
	})

	t.Run("owner deletes through folder endpoint", func(t *testing.T) {
		res := f.do(t, netHTTP.MethodDelete, "/v1/buckets/docs/folder?prefix=reports/", aliceToken, nil)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusNoContent, res.StatusCode)

		check := f.do(t, netHTTP.MethodGet, "/v1/buckets/docs/object?key=reports/q1.txt", aliceToken, nil)
		check.Body.Close()
		require.Equal(t, netHTTP.StatusNotFound, check.StatusCode)
	})
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t)

	adminToken, _ := f.login(t, "root")
	aliceToken, _ := f.login(t, "alice")
	bobToken, _ := f.login(t, "bob")

	body := bytes.NewReader([]byte(`{"name":"docs"}`))
	res := f.do(t, netHTTP.MethodPost, "/v1/buckets", adminToken, body)
	res.Body.Close()
	require.Equal(t, netHTTP.StatusCreated, res.StatusCode)

	f.upload(t, aliceToken, "docs", "", "alice-notes.txt", "meeting minutes").Body.Close()
	f.upload(t, bobToken, "docs", "", "bob-notes.txt", "meeting minutes").Body.Close()

	query := func(token string) []domain.SearchHit {
		res := f.do(t, netHTTP.MethodGet, "/v1/files/search?q=meeting", token, nil)
		defer res.Body.Close()
		require.Equal(t, netHTTP.StatusOK, res.StatusCode)

		var hits []domain.SearchHit
		require.NoError(t, json.NewDecoder(res.Body).Decode(&hits))
		return hits
	}

	require.Len(t, query(aliceToken), 1)
	require.Len(t, query(adminToken), 2)
}

func TestWebhook(t *testing.T) {
	f := newFixture(t)

	adminToken, _ := f.login(t, "root")

	body := bytes.NewReader([]byte(`{"name":"docs"}`))
	res := f.do(t, netHTTP.MethodPost, "/v1/buckets", adminToken, body)
	res.Body.Close()
	require.Equal(t, netHTTP.StatusCreated, res.StatusCode)

	f.upload(t, adminToken, "docs", "", "report.txt", "annual results").Body.Close()

	// Simulate projection loss; the webhook should rebuild it.
	require.NoError(t, f.index.DeleteObject(context.Background(), "docs", "report.txt"))
	require.Equal(t, 0, f.index.Len())

	event := []byte(`{"EventName":"s3:ObjectCreated:Put","Records":[` +
		`{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"docs"},"object":{"key":"report.txt"}}}]}`)

	post := func(payload []byte, header, sig string) *netHTTP.Response {
		req, err := netHTTP.NewRequest(netHTTP.MethodPost,
			f.srv.URL+"/v1/webhooks/storage", bytes.NewReader(payload))
		require.NoError(t, err)
		if header != "" {
			req.Header.Set(header, sig)
		}

		res, err := netHTTP.DefaultClient.Do(req)
		require.NoError(t, err)
		return res
	}

	t.Run("valid signature reindexes", func(t *testing.T) {
		sig := cryptox.SignHMACSHA256(event, webhookSecret)
		res := post(event, "X-Minio-Signature", sig)
		defer res.Body.Close()
		require.Equal(t, netHTTP.StatusOK, res.StatusCode)
		require.Equal(t, 1, f.index.Len())
	})

	t.Run("github style header with prefix", func(t *testing.T) {
		sig := "sha256=" + cryptox.SignHMACSHA256(event, webhookSecret)
		res := post(event, "X-Hub-Signature-256", sig)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusOK, res.StatusCode)
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		sig := cryptox.SignHMACSHA256(event, webhookSecret)
		tampered := bytes.Replace(event, []byte("report.txt"), []byte("evil.txt"), 1)
		res := post(tampered, "X-Minio-Signature", sig)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusUnauthorized, res.StatusCode)
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		res := post(event, "", "")
		res.Body.Close()
		require.Equal(t, netHTTP.StatusUnauthorized, res.StatusCode)
	})

	t.Run("removal event deindexes", func(t *testing.T) {
		removal := []byte(`{"EventName":"s3:ObjectRemoved:Delete","Records":[` +
			`{"eventName":"s3:ObjectRemoved:Delete","s3":{"bucket":{"name":"docs"},"object":{"key":"report.txt"}}}]}`)
		sig := cryptox.SignHMACSHA256(removal, webhookSecret)
		res := post(removal, "X-Minio-Signature", sig)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusOK, res.StatusCode)
		require.Equal(t, 0, f.index.Len())
	})
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	res, err := netHTTP.Get(f.srv.URL + "/livez")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, netHTTP.StatusOK, res.StatusCode)

	res2, err := netHTTP.Get(f.srv.URL + "/readyz")
	require.NoError(t, err)
	defer res2.Body.Close()
	require.Equal(t, netHTTP.StatusOK, res2.StatusCode)

	var health struct {
		Status string `json:"status"`
		Checks struct {
			Database string `json:"database"`
			Blobs    string `json:"blobs"`
			Search   string `json:"search"`
		} `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(res2.Body).Decode(&health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "ok", health.Checks.Database)
}

func TestReadyzAuthCheck(t *testing.T) {
	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "depot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	blobs := blob.NewMemoryStore()
	index := search.NewMemoryIndex()

	readyz := func(authReady func(context.Context) bool) *httptest.ResponseRecorder {
		h := depothttp.ReadyzHandler(time.Now(), "test", st, blobs, index, authReady)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(netHTTP.MethodGet, "/readyz", nil))
		return rec
	}

	t.Run("unreachable identity provider takes readiness down", func(t *testing.T) {
		rec := readyz(func(context.Context) bool { return false })
		require.Equal(t, netHTTP.StatusServiceUnavailable, rec.Code)

		var health struct {
			Status string `json:"status"`
			Checks struct {
				Auth string `json:"auth"`
			} `json:"checks"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
		require.Equal(t, "degraded", health.Status)
		require.Contains(t, health.Checks.Auth, "error")
	})

	t.Run("loaded provider keys report ok", func(t *testing.T) {
		rec := readyz(func(context.Context) bool { return true })
		require.Equal(t, netHTTP.StatusOK, rec.Code)

		var health struct {
			Checks struct {
				Auth string `json:"auth"`
			} `json:"checks"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
		require.Equal(t, "ok", health.Checks.Auth)
	})

	t.Run("local mode has no auth check", func(t *testing.T) {
		rec := readyz(nil)
		require.Equal(t, netHTTP.StatusOK, rec.Code)

		var health struct {
			Checks map[string]string `json:"checks"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
		require.NotContains(t, health.Checks, "auth")
	})
}

func TestBearerTokenStrictness(t *testing.T) {
	f := newFixture(t)

	token, _ := f.login(t, "alice")

	t.Run("token in query string is ignored", func(t *testing.T) {
		res, err := netHTTP.Get(f.srv.URL + "/v1/buckets?access_token=" + token)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusUnauthorized, res.StatusCode)
	})

	t.Run("malformed scheme is rejected", func(t *testing.T) {
		req, err := netHTTP.NewRequest(netHTTP.MethodGet, f.srv.URL+"/v1/buckets", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", fmt.Sprintf("Basic %s", token))

		res, err := netHTTP.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusUnauthorized, res.StatusCode)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		res := f.do(t, netHTTP.MethodGet, "/v1/buckets", "garbage", nil)
		res.Body.Close()
		require.Equal(t, netHTTP.StatusUnauthorized, res.StatusCode)
	})
}
