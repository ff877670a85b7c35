package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"kardex/internal/core/apperror"
	appctx "kardex/internal/core/context"
	"kardex/internal/core/id"
	"kardex/internal/infrastructure/http/v1/middleware"
	"kardex/internal/infrastructure/storage/postgres"
	"kardex/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        apperror.NewValidation("quantity must be positive"),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperror.CodeValidation,
			wantMsg:    "quantity must be positive",
		},
		{
			name:       "stock unit not found",
			err:        apperror.NewStockUnitNotFound("u-1"),
			wantStatus: http.StatusNotFound,
			wantCode:   apperror.CodeStockUnitNotFound,
		},
		{
			name:       "plain error is hidden",
			err:        errors.New("connection reset by peer"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   apperror.CodeInternal,
			wantMsg:    "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(middleware.Trace(), middleware.ErrorHandler())
			router.GET("/x", func(c *gin.Context) {
				_ = c.Error(tt.err)
				c.Abort()
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body.Message)
			}
			assert.NotContains(t, w.Body.String(), "connection reset")
		})
	}
}

func TestRecoveryRendersJSON(t *testing.T) {
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.Trace(), middleware.ErrorHandler())
	router.GET("/boom", func(c *gin.Context) {
		panic("nil map write")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-42")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.Equal(t, "req-42", body.Details["requestId"])
	assert.NotContains(t, w.Body.String(), "nil map")
}

func TestTraceEchoesAndGeneratesIDs(t *testing.T) {
	var seen *appctx.Trace
	router := gin.New()
	router.Use(middleware.Trace())
	router.GET("/t", func(c *gin.Context) {
		seen = appctx.GetTrace(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set(middleware.HeaderTraceID, "trace-1")
	router.ServeHTTP(w, req)

	require.NotNil(t, seen)
	assert.Equal(t, "trace-1", seen.TraceID)
	assert.NotEmpty(t, seen.RequestID)
	assert.Equal(t, appctx.OriginHTTP, seen.Origin)
	assert.Equal(t, "trace-1", w.Header().Get(middleware.HeaderTraceID))
	assert.Equal(t, seen.RequestID, w.Header().Get(middleware.HeaderRequestID))
}

func TestOwner(t *testing.T) {
	ownerID := id.New()

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid", header: ownerID.String(), wantStatus: http.StatusOK},
		{name: "missing", header: "", wantStatus: http.StatusBadRequest},
		{name: "malformed", header: "acme", wantStatus: http.StatusBadRequest},
		{name: "nil uuid", header: id.Nil().String(), wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got id.ID
			router := gin.New()
			router.Use(middleware.ErrorHandler(), middleware.Owner())
			router.GET("/o", func(c *gin.Context) {
				got = appctx.GetOwner(c.Request.Context())
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/o", nil)
			if tt.header != "" {
				req.Header.Set(middleware.HeaderOwnerID, tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, ownerID, got)
			}
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	router := gin.New()
	router.Use(middleware.Logger(log))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, path := range []string{"/ok", "/fail"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	logs := recorded.FilterMessage("http request").All()
	require.Len(t, logs, 2)
	assert.Equal(t, zapcore.InfoLevel, logs[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
	assert.Equal(t, "/fail", logs[1].ContextMap()["path"])
}

// memoryIdempotency keeps keys in memory.
type memoryIdempotency struct {
	completed map[string]*postgres.IdempotencyReplay
	pending   map[string]string
	failed    map[string]int
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{
		completed: make(map[string]*postgres.IdempotencyReplay),
		pending:   make(map[string]string),
		failed:    make(map[string]int),
	}
}

func (m *memoryIdempotency) AcquireKey(_ context.Context, key, _, _, requestHash string) (*postgres.IdempotencyReplay, error) {
	if replay, ok := m.completed[key]; ok {
		return replay, nil
	}
	if hash, ok := m.pending[key]; ok && hash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key)
	}
	m.pending[key] = requestHash
	return nil, nil
}

func (m *memoryIdempotency) CompleteKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := json.Marshal(response)
	if err != nil {
		return err
	}
	m.completed[key] = &postgres.IdempotencyReplay{StatusCode: statusCode, ContentType: contentType, Body: body}
	return nil
}

func (m *memoryIdempotency) FailKey(_ context.Context, key string, statusCode int, _ string, _ any) error {
	m.failed[key] = statusCode
	return nil
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newMemoryIdempotency()
	calls := 0

	router := gin.New()
	router.Use(middleware.ErrorHandler(), middleware.Idempotency(store))
	router.POST("/r", func(c *gin.Context) {
		calls++
		resp := gin.H{"number": "GR-000001"}
		middleware.CompleteIdempotency(c, http.StatusCreated, "application/json", resp)
		c.JSON(http.StatusCreated, resp)
	})

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/r", strings.NewReader(`{"a":1}`))
		req.Header.Set(middleware.HeaderIdempotencyKey, "k-1")
		router.ServeHTTP(w, req)
		return w
	}

	first := send()
	second := send()

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestIdempotencyMarksFailures(t *testing.T) {
	store := newMemoryIdempotency()

	router := gin.New()
	router.Use(middleware.ErrorHandler(), middleware.Idempotency(store))
	router.POST("/r", func(c *gin.Context) {
		_ = c.Error(apperror.NewPeriodClosed(time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC), "closed"))
		c.Abort()
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/r", strings.NewReader(`{}`))
	req.Header.Set(middleware.HeaderIdempotencyKey, "k-2")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, store.failed["k-2"])
}

func TestIdempotencySkipsWithoutKeyOrOnReads(t *testing.T) {
	store := newMemoryIdempotency()

	router := gin.New()
	router.Use(middleware.Idempotency(store))
	router.GET("/r", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/r", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := httptest.NewRequest(http.MethodGet, "/r", nil)
	get.Header.Set(middleware.HeaderIdempotencyKey, "k-3")
	router.ServeHTTP(httptest.NewRecorder(), get)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/r", strings.NewReader("{}")))

	assert.Empty(t, store.pending)
}

func TestIdempotencyRejectsOversizedBody(t *testing.T) {
	router := gin.New()
	router.Use(middleware.ErrorHandler(), middleware.Idempotency(newMemoryIdempotency()))
	router.POST("/r", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/r", strings.NewReader(strings.Repeat("x", 1<<20+1)))
	req.Header.Set(middleware.HeaderIdempotencyKey, "k-4")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestIdempotencyRejectsUnreadableBody(t *testing.T) {
	store := newMemoryIdempotency()
	router := gin.New()
	router.Use(middleware.ErrorHandler(), middleware.Idempotency(store))
	called := false
	router.POST("/r", func(c *gin.Context) { called = true })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/r", brokenBody{})
	req.Header.Set("Idempotency-Key", "k-5")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, decodeError(t, w).Code)
	assert.False(t, called)
	assert.Empty(t, store.pending)
}
