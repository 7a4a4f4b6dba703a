package http

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"resume-scheduler/internal/action"
	"resume-scheduler/internal/clock"
	"resume-scheduler/internal/hh"
	"resume-scheduler/internal/model"
	"resume-scheduler/internal/schedule"
	"strings"
	"testing"
	"time"
)

type fakeResumes struct {
	resumes    []hh.Resume
	err        error
	authorized []string
}

func (f *fakeResumes) Resumes(context.Context, string) ([]hh.Resume, error) {
	return f.resumes, f.err
}

func (f *fakeResumes) AuthCodeURL(owner string) string {
	return "https://hh.example/oauth/authorize?user=" + owner
}

func (f *fakeResumes) ValidState(owner, state string) bool {
	return state == "state-"+owner
}

func (f *fakeResumes) Authorize(_ context.Context, owner, _ string) error {
	f.authorized = append(f.authorized, owner)
	return nil
}

type testApp struct {
	handler http.Handler
	users   model.UserStorage
	resumes *fakeResumes
}

type unwritableJobStorage struct {
	model.JobStorage
}

func (unwritableJobStorage) CreateJobs(context.Context, []model.Job) ([]model.JobId, error) {
	return nil, errors.New("database is down")
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWithJobs(t, model.NewMemoryJobStorage())
}

func newTestAppWithJobs(t *testing.T, jobs model.JobStorage) *testApp {
	t.Helper()
	users := model.NewMemoryUserStorage()
	resumes := &fakeResumes{}
	manager := schedule.NewManager(jobs, time.UTC)
	server, err := NewScheduleServer(manager, users, resumes, ":0")
	require.NoError(t, err)
	return &testApp{server.Handler, users, resumes}
}

func (ta *testApp) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, url, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	ta.handler.ServeHTTP(recorder, request)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&v))
	return v
}

func TestScheduleAndListUpdates(t *testing.T) {
	app := newTestApp(t)

	recorder := app.do(t, "PUT", "/api/v1/schedules/42/resume-1/", `{"times":"17:00, 09:00, 13:00","timezone":"Europe/Moscow"}`)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	scheduled := decode[scheduleResponse](t, recorder)
	assert.Equal(t, scheduleResponse{3, "09:00, 13:00, 17:00", "Europe/Moscow"}, scheduled)

	recorder = app.do(t, "GET", "/api/v1/schedules/resume-1/", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	times := decode[timesResponse](t, recorder).Times
	require.Len(t, times, 3)
	assert.True(t, times[0].Before(times[1]))
	assert.True(t, times[1].Before(times[2]))

	user, err := app.users.GetUser(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", user.Timezone)
}

func TestScheduleUsesStoredTimezone(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.users.SetTimezone(context.Background(), "42", "Asia/Tokyo"))

	recorder := app.do(t, "PUT", "/api/v1/schedules/42/resume-1/", `{"times":"09:00"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Asia/Tokyo", decode[scheduleResponse](t, recorder).Timezone)

	recorder = app.do(t, "PUT", "/api/v1/schedules/7/resume-2/", `{"times":"09:00"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, model.DefaultTimezone, decode[scheduleResponse](t, recorder).Timezone)
}

func TestFailedScheduleKeepsStoredTimezone(t *testing.T) {
	app := newTestAppWithJobs(t, unwritableJobStorage{model.NewMemoryJobStorage()})
	require.NoError(t, app.users.SetTimezone(context.Background(), "42", "Asia/Tokyo"))

	recorder := app.do(t, "PUT", "/api/v1/schedules/42/resume-1/", `{"times":"09:00","timezone":"Europe/Berlin"}`)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)

	user, err := app.users.GetUser(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", user.Timezone)
}

func TestScheduleRejectsInvalidTimes(t *testing.T) {
	app := newTestApp(t)

	cases := map[string]clock.FormatErrorKind{
		`{"times":"09:00, 12:00"}`:                        clock.TooSmallIntervals,
		`{"times":"9:00"}`:                                clock.WrongFormat,
		`{"times":"01:00,02:00,03:00,04:00,05:00,06:00"}`: clock.TooManyTimes,
	}
	for body, kind := range cases {
		recorder := app.do(t, "PUT", "/api/v1/schedules/42/resume-1/", body)
		require.Equal(t, http.StatusBadRequest, recorder.Code, body)
		assert.Equal(t, (&clock.FormatError{Kind: kind}).Message(), decode[map[string]any](t, recorder)["error"], body)
	}

	recorder := app.do(t, "GET", "/api/v1/schedules/resume-1/", "")
	assert.Empty(t, decode[timesResponse](t, recorder).Times)
}

func TestScheduleRejectsBadRequests(t *testing.T) {
	app := newTestApp(t)

	recorder := app.do(t, "PUT", "/api/v1/schedules/42/resume-1/", `{"times":"09:00","timezone":"Mars/Base"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "timezone")

	recorder = app.do(t, "PUT", "/api/v1/schedules/42/resume-1/", `{"times":""}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = app.do(t, "PUT", "/api/v1/schedules/42/resume-1/", `{"times":"09:00","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	request := httptest.NewRequest("PUT", "/api/v1/schedules/42/resume-1/", strings.NewReader(`times=09:00`))
	request.Header.Set("Content-Type", "text/plain")
	recorder = httptest.NewRecorder()
	app.handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusUnsupportedMediaType, recorder.Code)
}

func TestDisableUpdates(t *testing.T) {
	app := newTestApp(t)

	recorder := app.do(t, "DELETE", "/api/v1/schedules/42/resume-1/", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, int64(0), decode[deletedResponse](t, recorder).Deleted)

	app.do(t, "PUT", "/api/v1/schedules/42/resume-1/", `{"times":"09:00, 21:00"}`)

	recorder = app.do(t, "DELETE", "/api/v1/schedules/42/resume-1/", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, int64(2), decode[deletedResponse](t, recorder).Deleted)
}

func TestResumesIncludeNextUpdates(t *testing.T) {
	app := newTestApp(t)
	app.resumes.resumes = []hh.Resume{{Id: "resume-1", Title: "Go developer"}, {Id: "resume-2", Title: "SRE"}}
	app.do(t, "PUT", "/api/v1/schedules/42/resume-1/", `{"times":"09:00"}`)

	recorder := app.do(t, "GET", "/api/v1/users/42/resumes/", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	resumes := decode[[]resumeResponse](t, recorder)
	require.Len(t, resumes, 2)
	assert.Len(t, resumes[0].NextUpdates, 1)
	assert.Empty(t, resumes[1].NextUpdates)
}

func TestResumesUnauthorized(t *testing.T) {
	app := newTestApp(t)
	app.resumes.err = &action.Failure{Category: action.Unauthorized, Err: errors.New("no token")}

	recorder := app.do(t, "GET", "/api/v1/users/42/resumes/", "")
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, action.Message(action.Unauthorized), decode[map[string]any](t, recorder)["error"])
}

func TestConnectAndAuth(t *testing.T) {
	app := newTestApp(t)

	recorder := app.do(t, "GET", "/api/v1/users/42/connect/", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "https://hh.example/oauth/authorize?user=42", decode[map[string]string](t, recorder)["url"])

	recorder = app.do(t, "GET", "/auth/?user=42&code=abc&state=forged", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, app.resumes.authorized)

	recorder = app.do(t, "GET", "/auth/?user=42&state=state-42&error=access_denied", "")
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = app.do(t, "GET", "/auth/?user=42&code=abc&state=state-42", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, []string{"42"}, app.resumes.authorized)
}
