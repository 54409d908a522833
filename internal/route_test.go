package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/dao/query/querytest"
	"github.com/raids-lab/staffdesk/internal/handler"
	"github.com/raids-lab/staffdesk/internal/resputil"
	"github.com/raids-lab/staffdesk/internal/util"
	"github.com/raids-lab/staffdesk/pkg/actor"
	"github.com/raids-lab/staffdesk/pkg/blobstore"
	"github.com/raids-lab/staffdesk/pkg/config"
	"github.com/raids-lab/staffdesk/pkg/cronjob"
	"github.com/raids-lab/staffdesk/pkg/lifecycle"
	"github.com/raids-lab/staffdesk/pkg/notify"
	"github.com/raids-lab/staffdesk/pkg/schema"
	"github.com/raids-lab/staffdesk/pkg/workflow"
)

type server struct {
	t        *testing.T
	r        *gin.Engine
	f        *querytest.Fixture
	tokenMgr *util.TokenManager
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := querytest.NewDB(t)
	f := querytest.Seed(t, db)
	blobs, err := blobstore.NewFSStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	directory := actor.NewDBDirectory(db)
	dispatcher := notify.NewDispatcher(db)
	registry := schema.NewRegistry(db)
	engine := lifecycle.NewEngine(db, directory, dispatcher, blobs)
	cron := cronjob.NewCronJobManager(db)
	_, err = cron.AddCronJob(cronjob.CleanReadNotificationsJob, "0 3 * * *",
		cronjob.CleanReadNotifications(db, 30, time.Now))
	require.NoError(t, err)

	conf, err := config.ParseConfig([]byte("auth:\n  accessTokenSecret: test\n"))
	require.NoError(t, err)
	tokenMgr := util.NewTokenManager("test", 1)

	r := Register(&handler.RegisterConfig{
		Config:        conf,
		DB:            db,
		Service:       workflow.NewService(db, engine, registry, blobs),
		Registry:      registry,
		Notifications: dispatcher,
		Hub:           notify.NewHub(),
		Cron:          cron,
		TokenMgr:      tokenMgr,
		Resolver:      directory,
	})
	return &server{t: t, r: r, f: f, tokenMgr: tokenMgr}
}

func (s *server) token(u *model.User) string {
	s.t.Helper()
	token, err := s.tokenMgr.CreateToken(&util.JWTMessage{UserID: u.ID, Username: u.Name})
	require.NoError(s.t, err)
	return token
}

func (s *server) do(u *model.User, method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(u))
	}
	rec := httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) resputil.Response[T] {
	t.Helper()
	var resp resputil.Response[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

type requestView struct {
	ID      uint                `json:"id"`
	Status  model.RequestStatus `json:"status"`
	Version uint                `json:"version"`
}

func TestHealthzAndAuth(t *testing.T) {
	s := newServer(t)

	rec := s.do(nil, http.MethodGet, "/v1/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(nil, http.MethodGet, "/v1/requests", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/requests", http.NoBody)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, resputil.TokenExpired, decode[any](t, rec).Code)

	// inactive users are rejected even with a valid token
	rec = s.do(&s.f.InactiveVendor, http.MethodGet, "/v1/requests", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// query token for clients that cannot set headers
	rec = httptest.NewRecorder()
	s.r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/notifications/unread-count?token="+s.token(&s.f.ClientUser), http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(&s.f.ClientUser, http.MethodGet, "/v1/admin/request-types", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(&s.f.Superuser, http.MethodGet, "/v1/admin/request-types", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)
	client, vendor := &s.f.ClientUser, &s.f.VendorStaff[0]

	rec := s.do(client, http.MethodPost, "/v1/requests", map[string]any{
		"requestTypeID": s.f.RequestType.ID,
		"workerID":      s.f.Worker.ID,
		"title":         "Weekend overtime",
		"fieldValues":   map[string]any{"site": "Dock 4", "night": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[requestView](t, rec).Data
	assert.Equal(t, model.RequestStatusDraft, created.Status)
	path := fmt.Sprintf("/v1/requests/%d", created.ID)

	// the vendor cannot see drafts
	rec = s.do(vendor, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// hours is required
	rec = s.do(client, http.MethodPost, path+"/actions/confirm_submission", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	missing := decode[struct {
		Reason  string   `json:"reason"`
		Missing []string `json:"missing"`
	}](t, rec).Data
	assert.Equal(t, "MissingRequired", missing.Reason)
	assert.Equal(t, []string{"Hours"}, missing.Missing)

	rec = s.do(client, http.MethodPut, path, map[string]any{"fieldValues": map[string]any{"hours": 7.5}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(client, http.MethodPost, path+"/actions/confirm_submission", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.RequestStatusSubmitted, decode[requestView](t, rec).Data.Status)

	rec = s.do(vendor, http.MethodGet, path+"/actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"start_processing", "reject"}, decode[[]string](t, rec).Data)

	rec = s.do(vendor, http.MethodPost, path+"/actions/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, resputil.InvalidTransition, decode[any](t, rec).Code)

	rec = s.do(vendor, http.MethodPost, path+"/actions/teleport", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(vendor, http.MethodPost, path+"/actions/start_processing", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(vendor, http.MethodPost, path+"/actions/reject", map[string]any{"rejectionReason": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(vendor, http.MethodPost, path+"/actions/complete", map[string]any{"closureNote": "done"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[requestView](t, rec).Data
	assert.Equal(t, model.RequestStatusCompleted, done.Status)
	assert.Equal(t, uint(5), done.Version) // create, edit, submit, start, complete

	rec = s.do(client, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[struct {
		Status   model.RequestStatus `json:"status"`
		Timeline []struct {
			Action string `json:"action"`
		} `json:"timeline"`
		Values []struct {
			Field struct {
				Key string `json:"key"`
			} `json:"field"`
			Value json.RawMessage `json:"value"`
		} `json:"values"`
		Actions []string `json:"actions"`
	}](t, rec).Data
	assert.Equal(t, model.RequestStatusCompleted, detail.Status)
	assert.Len(t, detail.Timeline, 3)
	assert.Empty(t, detail.Actions)
	values := map[string]string{}
	for _, v := range detail.Values {
		values[v.Field.Key] = string(v.Value)
	}
	assert.Equal(t, "7.5", values["hours"])
	assert.Equal(t, `"Dock 4"`, values["site"])
	assert.Equal(t, "true", values["night"])

	// the client was told about start and completion
	rec = s.do(client, http.MethodGet, "/v1/notifications/unread-count", nil)
	assert.Equal(t, int64(2), decode[int64](t, rec).Data)

	rec = s.do(client, http.MethodGet, "/v1/requests?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Count        int64                         `json:"count"`
		StatusCounts map[model.RequestStatus]int64 `json:"statusCounts"`
	}](t, rec).Data
	assert.Equal(t, int64(1), page.Count)
	assert.Equal(t, int64(1), page.StatusCounts[model.RequestStatusCompleted])

	rec = s.do(client, http.MethodGet, "/v1/requests?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttachmentsOverHTTP(t *testing.T) {
	s := newServer(t)
	client := &s.f.ClientUser

	rec := s.do(client, http.MethodPost, "/v1/requests", map[string]any{
		"requestTypeID": s.f.RequestType.ID,
		"workerID":      s.f.Worker.ID,
		"title":         "Night shift",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	path := fmt.Sprintf("/v1/requests/%d/attachments", decode[requestView](t, rec).Data.ID)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "timesheet.txt")
	require.NoError(t, err)
	_, err = io.WriteString(part, "mon 8h\ntue 9h\n")
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("description", "week 40"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(client))
	rec = httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	att := decode[struct {
		ID       uint   `json:"id"`
		FileName string `json:"fileName"`
		Size     int64  `json:"size"`
	}](t, rec).Data
	assert.Equal(t, "timesheet.txt", att.FileName)
	assert.Equal(t, int64(14), att.Size)

	rec = s.do(client, http.MethodGet, fmt.Sprintf("%s/%d", path, att.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mon 8h\ntue 9h\n", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "timesheet.txt")

	rec = s.do(&s.f.ClientPeer, http.MethodDelete, fmt.Sprintf("%s/%d", path, att.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(client, http.MethodDelete, fmt.Sprintf("%s/%d", path, att.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(client, http.MethodGet, fmt.Sprintf("%s/%d", path, att.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminSchemaAndOperations(t *testing.T) {
	s := newServer(t)
	root := &s.f.Superuser

	rec := s.do(root, http.MethodPost, "/v1/admin/request-types", map[string]any{"name": "Leave", "code": "leave"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	typeID := decode[struct {
		ID uint `json:"id"`
	}](t, rec).Data.ID

	rec = s.do(root, http.MethodPost, fmt.Sprintf("/v1/admin/request-types/%d/fields", typeID), map[string]any{
		"key": "kind", "label": "Kind", "type": "choice",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(root, http.MethodPost, fmt.Sprintf("/v1/admin/request-types/%d/fields", typeID), map[string]any{
		"key": "kind", "label": "Kind", "type": "colour",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(root, http.MethodPost, fmt.Sprintf("/v1/admin/request-types/%d/fields", typeID), map[string]any{
		"key": "kind", "label": "Kind", "type": "choice", "isRequired": true, "options": []string{"annual", "sick"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fieldID := decode[struct {
		ID uint `json:"id"`
	}](t, rec).Data.ID

	rec = s.do(&s.f.ClientUser, http.MethodGet, fmt.Sprintf("/v1/request-types/%d/fields", typeID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]any](t, rec).Data, 1)

	rec = s.do(root, http.MethodPut, fmt.Sprintf("/v1/admin/request-fields/%d", fieldID), map[string]any{"isActive": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(&s.f.ClientUser, http.MethodGet, fmt.Sprintf("/v1/request-types/%d/fields", typeID), nil)
	assert.Empty(t, decode[[]any](t, rec).Data)

	rec = s.do(root, http.MethodGet, "/v1/admin/operations/cronjob/names", nil)
	assert.Equal(t, []string{cronjob.CleanReadNotificationsJob}, decode[[]string](t, rec).Data)

	rec = s.do(root, http.MethodPost, "/v1/admin/operations/cronjob/"+cronjob.CleanReadNotificationsJob+"/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.CronJobRecordStatusSuccess, decode[model.CronJobRecord](t, rec).Data.Status)

	rec = s.do(root, http.MethodPost, "/v1/admin/operations/cronjob/nope/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	rec := s.do(nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `staffdesk_requests{status="draft"} 0`)
}

func TestActionWithoutBody(t *testing.T) {
	s := newServer(t)
	client := &s.f.ClientUser

	rec := s.do(client, http.MethodPost, "/v1/requests", map[string]any{
		"requestTypeID": s.f.RequestType.ID,
		"workerID":      s.f.Worker.ID,
		"title":         "Short notice",
		"fieldValues":   map[string]any{"hours": 2},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	path := fmt.Sprintf("/v1/requests/%d/actions/", decode[requestView](t, rec).Data.ID)

	// unknown length, nothing to read
	req := httptest.NewRequest(http.MethodPost, path+"confirm_submission", http.NoBody)
	require.Equal(t, int64(-1), req.ContentLength)
	req.Header.Set("Authorization", "Bearer "+s.token(client))
	rec = httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.RequestStatusSubmitted, decode[requestView](t, rec).Data.Status)

	// chunked and empty
	req = httptest.NewRequest(http.MethodPost, path+"cancel", strings.NewReader(""))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token(client))
	rec = httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.RequestStatusCancelled, decode[requestView](t, rec).Data.Status)

	// a body that is present must still be valid JSON
	req = httptest.NewRequest(http.MethodPost, path+"cancel", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token(client))
	rec = httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJSONFieldKeepsStringDocuments(t *testing.T) {
	s := newServer(t)
	client := &s.f.ClientUser

	rec := s.do(client, http.MethodPost, "/v1/requests", map[string]any{
		"requestTypeID": s.f.RequestType.ID,
		"workerID":      s.f.Worker.ID,
		"title":         "Tools",
		"fieldValues":   map[string]any{"extra": "hello", "site": "Yard"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	path := fmt.Sprintf("/v1/requests/%d", decode[requestView](t, rec).Data.ID)

	values := func() map[string]string {
		rec := s.do(client, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		detail := decode[struct {
			Values []struct {
				Field struct {
					Key string `json:"key"`
				} `json:"field"`
				Value json.RawMessage `json:"value"`
			} `json:"values"`
		}](t, rec).Data
		out := map[string]string{}
		for _, v := range detail.Values {
			out[v.Field.Key] = string(v.Value)
		}
		return out
	}
	got := values()
	assert.Equal(t, `"hello"`, got["extra"])
	assert.Equal(t, `"Yard"`, got["site"])

	rec = s.do(client, http.MethodPut, path, map[string]any{
		"fieldValues": map[string]any{"extra": map[string]any{"gloves": 2}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"gloves":2}`, values()["extra"])

	// other field types still read JSON strings as their text form
	rec = s.do(client, http.MethodPut, path, map[string]any{"fieldValues": map[string]any{"hours": "7"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "7", values()["hours"])
}

func TestListPagingIsBounded(t *testing.T) {
	s := newServer(t)
	client := &s.f.ClientUser
	for i := range 3 {
		rec := s.do(client, http.MethodPost, "/v1/requests", map[string]any{
			"requestTypeID": s.f.RequestType.ID,
			"workerID":      s.f.Worker.ID,
			"title":         fmt.Sprintf("Shift %d", i),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	type listView struct {
		Rows  []requestView `json:"rows"`
		Count int64         `json:"count"`
	}
	rec := s.do(client, http.MethodGet, "/v1/requests?page_index=0&page_size=100000000", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[listView](t, rec).Data
	assert.Equal(t, int64(3), page.Count)
	assert.Len(t, page.Rows, 3)

	rec = s.do(client, http.MethodGet, fmt.Sprintf("/v1/requests?page_index=%d&page_size=100", math.MaxInt64), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page = decode[listView](t, rec).Data
	assert.Equal(t, int64(3), page.Count)
	assert.Empty(t, page.Rows)

	rec = s.do(client, http.MethodGet, fmt.Sprintf("/v1/notifications?page_index=%d&page_size=100000000", math.MaxInt64), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
