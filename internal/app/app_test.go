package app

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/patientenakte/internal/api"
	"github.com/wolfeidau/patientenakte/internal/client"
	"github.com/wolfeidau/patientenakte/internal/config"
	"github.com/wolfeidau/patientenakte/internal/fakebackend"
	"github.com/wolfeidau/patientenakte/internal/login"
	"github.com/wolfeidau/patientenakte/internal/models"
	"github.com/wolfeidau/patientenakte/internal/query"
	"github.com/wolfeidau/patientenakte/internal/router"
	"github.com/wolfeidau/patientenakte/internal/session"
)

var nurse = api.Credentials{Username: "nurse1", Password: "correct"}

func settings(backend *fakebackend.Server, dir string) config.Settings {
	s := config.Default()
	s.APIURL = backend.URL
	s.SessionDir = dir
	return s
}

func newTestApp(t *testing.T, backend *fakebackend.Server, dir string) (*App, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	a, err := New(settings(backend, dir), &out)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, &out
}

func newBackend(t *testing.T) *fakebackend.Server {
	t.Helper()
	backend := fakebackend.New()
	t.Cleanup(backend.Close)
	return backend
}

func readRecord(t *testing.T, dir string) session.Record {
	t.Helper()
	fs, err := session.NewFileStorage(dir)
	require.NoError(t, err)
	rec, err := fs.Load()
	require.NoError(t, err)
	return *rec
}

func TestLoginPersistsSession(t *testing.T) {
	backend := newBackend(t)
	backend.NextToken = "tok_abc"
	dir := t.TempDir()

	a, out := newTestApp(t, backend, dir)

	require.NoError(t, a.SignIn(context.Background(), nurse))
	assert.Equal(t, login.Authenticated, a.Login.State())

	s := a.Sessions.Get()
	assert.True(t, s.Authenticated)
	assert.Equal(t, "tok_abc", s.Token)
	require.NotNil(t, s.User)
	assert.Equal(t, "nurse1", s.User.Username)

	rec := readRecord(t, dir)
	assert.Equal(t, "tok_abc", rec.Token)
	require.NotNil(t, rec.User)
	assert.Equal(t, int64(7), rec.User.ID)

	require.NoError(t, a.Open(context.Background(), "/"))
	assert.Equal(t, router.DashboardPath, a.Navigator.Location())
	assert.Contains(t, out.String(), "Nora Neumann (staff)")

	headers := backend.AuthorizationHeaders()
	require.NotEmpty(t, headers)
	assert.Equal(t, "", headers[0], "login is sent without credentials")
	assert.Equal(t, "Bearer tok_abc", headers[len(headers)-1])
}

func TestExpiredSessionRedirectsToLogin(t *testing.T) {
	backend := newBackend(t)
	dir := t.TempDir()
	backend.AddPatient(models.PatientFields{FirstName: "Max", LastName: "Muster", DateOfBirth: "1980-02-01"})

	a, out := newTestApp(t, backend, dir)
	require.NoError(t, a.SignIn(context.Background(), nurse))

	backend.RevokeAll()

	require.NoError(t, a.Open(context.Background(), "/patients"))
	assert.Equal(t, router.LoginPath, a.Navigator.Location())
	assert.NotContains(t, out.String(), "Muster")
	assert.Contains(t, out.String(), "Not signed in")

	assert.False(t, a.Sessions.Get().Authenticated)
	assert.Equal(t, login.Anonymous, a.Login.State())
	assert.Empty(t, readRecord(t, dir).Token)

	_, err := a.Auth.CurrentUser(context.Background())
	require.ErrorIs(t, err, client.ErrAuthExpired)
	headers := backend.AuthorizationHeaders()
	assert.Equal(t, "", headers[len(headers)-1])
}

func TestSessionSurvivesRestart(t *testing.T) {
	backend := newBackend(t)
	dir := t.TempDir()

	first, _ := newTestApp(t, backend, dir)
	require.NoError(t, first.SignIn(context.Background(), nurse))
	token := first.Sessions.Get().Token
	first.Close()

	meHits := backend.Hits(http.MethodGet, "/api/v1/auth/me")

	second, out := newTestApp(t, backend, dir)
	s := second.Sessions.Get()
	assert.True(t, s.Authenticated)
	assert.Equal(t, token, s.Token)
	require.NotNil(t, s.User)
	assert.Equal(t, "nurse1", s.User.Username)
	assert.Equal(t, login.Authenticated, second.Login.State())
	assert.Equal(t, meHits, backend.Hits(http.MethodGet, "/api/v1/auth/me"), "a restored session is not revalidated")

	require.NoError(t, second.Open(context.Background(), "/dashboard"))
	assert.Equal(t, router.DashboardPath, second.Navigator.Location())
	assert.Contains(t, out.String(), "Nora Neumann")
}

func TestAnonymousProtectedRoute(t *testing.T) {
	backend := newBackend(t)
	a, out := newTestApp(t, backend, t.TempDir())

	require.NoError(t, a.Open(context.Background(), "/patients/7"))
	assert.Equal(t, router.LoginPath, a.Navigator.Location())
	assert.Contains(t, out.String(), "Not signed in")
	assert.Empty(t, backend.AuthorizationHeaders(), "no request reaches the backend")
}

func TestPatientViews(t *testing.T) {
	backend := newBackend(t)
	phone := "030 1234567"
	id := backend.AddPatient(models.PatientFields{FirstName: "Max", LastName: "Muster", DateOfBirth: "1980-02-01", Phone: &phone})

	a, out := newTestApp(t, backend, t.TempDir())
	require.NoError(t, a.SignIn(context.Background(), nurse))

	require.NoError(t, a.Open(context.Background(), "/patients"))
	assert.Contains(t, out.String(), "Muster, Max")
	assert.Contains(t, out.String(), "1980-02-01")

	out.Reset()
	require.NoError(t, a.Open(context.Background(), "/patients/"+strconv.FormatInt(id, 10)))
	assert.Equal(t, "/patients/"+strconv.FormatInt(id, 10), a.Navigator.Location())
	assert.Contains(t, out.String(), "030 1234567")
	assert.Contains(t, out.String(), "Email:")

	out.Reset()
	err := a.Open(context.Background(), "/patients/999")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, client.StatusCode(err))
	assert.Empty(t, out.String())
	assert.True(t, a.Sessions.Get().Authenticated, "a 404 keeps the session")
}

func TestQueriesAreCached(t *testing.T) {
	backend := newBackend(t)
	a, _ := newTestApp(t, backend, t.TempDir())
	require.NoError(t, a.SignIn(context.Background(), nurse))

	ctx := context.Background()
	_, err := a.ListPatients(ctx, 0, 100)
	require.NoError(t, err)
	_, err = a.ListPatients(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Hits(http.MethodGet, "/api/v1/patients"))

	created, err := a.CreatePatient(ctx, models.PatientCreate{
		PatientFields: models.PatientFields{FirstName: "Erika", LastName: "Mustermann", DateOfBirth: "1975-06-30"},
		ConsentGiven:  true,
	})
	require.NoError(t, err)

	patients, err := a.ListPatients(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Hits(http.MethodGet, "/api/v1/patients"), "mutations invalidate the list")
	require.Len(t, patients, 1)
	assert.Equal(t, created.ID, patients[0].ID)
}

func TestSessionChangeClearsCaches(t *testing.T) {
	backend := newBackend(t)
	a, _ := newTestApp(t, backend, t.TempDir())
	ctx := context.Background()

	require.NoError(t, a.SignIn(ctx, nurse))
	_, err := a.CurrentUser(ctx)
	require.NoError(t, err)
	hits := backend.Hits(http.MethodGet, "/api/v1/auth/me")

	require.NoError(t, a.Logout())
	assert.Equal(t, login.Anonymous, a.Login.State())

	_, err = a.CurrentUser(ctx)
	require.ErrorIs(t, err, client.ErrAuthExpired, "nothing cached from the old session is served")
	assert.Equal(t, hits+1, backend.Hits(http.MethodGet, "/api/v1/auth/me"))
}

func TestUpdateAndDeletePatient(t *testing.T) {
	backend := newBackend(t)
	id := backend.AddPatient(models.PatientFields{FirstName: "Max", LastName: "Muster", DateOfBirth: "1980-02-01"})

	a, _ := newTestApp(t, backend, t.TempDir())
	ctx := context.Background()
	require.NoError(t, a.SignIn(ctx, nurse))

	_, err := a.Patient(ctx, id)
	require.NoError(t, err)

	allergies := "Penicillin"
	_, err = a.UpdatePatient(ctx, id, models.PatientUpdate{Allergies: &allergies})
	require.NoError(t, err)

	p, err := a.Patient(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p.Allergies)
	assert.Equal(t, "Penicillin", *p.Allergies)

	require.NoError(t, a.DeletePatient(ctx, id))
	_, err = a.Patient(ctx, id)
	assert.Equal(t, http.StatusNotFound, client.StatusCode(err))
}

func TestNew_invalidSettings(t *testing.T) {
	s := config.Default()
	s.APIURL = "ftp://example.org"
	s.SessionDir = t.TempDir()

	_, err := New(s, &bytes.Buffer{})
	require.Error(t, err)
}

func TestNew_createsSessionDir(t *testing.T) {
	backend := newBackend(t)
	dir := filepath.Join(t.TempDir(), "nested")

	a, _ := newTestApp(t, backend, dir)
	require.NoError(t, a.SignIn(context.Background(), nurse))

	_, err := os.Stat(filepath.Join(dir, session.StorageKey))
	require.NoError(t, err)
}

func TestNew_options(t *testing.T) {
	backend := newBackend(t)

	var logs bytes.Buffer
	storage := session.NewMemoryStorage()
	a, err := New(settings(backend, t.TempDir()), &bytes.Buffer{},
		WithStorage(storage),
		WithClientOptions(client.WithLogger(zerolog.New(&logs).Level(zerolog.DebugLevel))),
		WithQueryOptions(query.WithRetries(0)),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ctx := context.Background()
	require.NoError(t, a.SignIn(ctx, nurse))
	assert.NotEmpty(t, storage.Bytes(), "the session goes to the given storage")

	assert.Contains(t, logs.String(), `"path":"/api/v1/auth/login"`)
	assert.NotContains(t, logs.String(), a.Sessions.Get().Token)

	backend.FailNext(http.StatusServiceUnavailable)
	_, err = a.ListPatients(ctx, 0, 100)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, client.StatusCode(err))
	assert.Equal(t, 1, backend.Hits(http.MethodGet, "/api/v1/patients"), "retries are disabled")
}
