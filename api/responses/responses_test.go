package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body errorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"crew": "A"})

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"crew":"A"}}`, w.Body.String())
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"from": "must be a date in YYYY-MM-DD format"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)
	got := decodeError(t, w)
	require.Equal(t, string(pkgerrors.CodeValidation), got.Code)
	require.Equal(t, "bad input", got.Message)
	require.False(t, got.Retryable)
	require.NotNil(t, got.Details)
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	got := decodeError(t, w)
	require.Equal(t, string(pkgerrors.CodeInternal), got.Code)
	require.Equal(t, "internal server error", got.Message)
	require.True(t, got.Retryable)
	require.Nil(t, got.Details)
}

func TestWriteErrorKeepsCapacityMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeCapacity, "Crew B would exceed its ceiling"))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "Crew B would exceed its ceiling", decodeError(t, w).Message)
}

func TestWriteErrorLogLevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: &buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeNotFound, "no crew"))
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.Contains(t, buf.String(), `"status":404`)

	buf.Reset()
	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "load jobs"))
	require.Contains(t, buf.String(), `"level":"error"`)
	require.Contains(t, buf.String(), `"error_code":"DEPENDENCY_ERROR"`)
}
