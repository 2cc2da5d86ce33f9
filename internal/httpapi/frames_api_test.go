package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimit(t *testing.T) {
	assert.Equal(t, int64(0), parseLimit(""))
	assert.Equal(t, int64(0), parseLimit("abc"))
	assert.Equal(t, int64(0), parseLimit("-3"))
	assert.Equal(t, int64(25), parseLimit("25"))
}

func TestHandleQueryRejectsNonGet(t *testing.T) {
	handler := NewFramesHandler(nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/frames", nil)

	handler.HandleQuery(recorder, request)

	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)

	var response Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, http.StatusMethodNotAllowed, response.Code)
}

func TestHandleStatsRejectsNonGet(t *testing.T) {
	handler := NewFramesHandler(nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodDelete, "/v1/frames/stats", nil)

	handler.HandleStats(recorder, request)

	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestWriteSuccessShape(t *testing.T) {
	recorder := httptest.NewRecorder()

	writeSuccess(recorder, map[string]int{"count": 3})

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	assert.JSONEq(t,
		`{"code":200,"message":"success","data":{"count":3}}`,
		recorder.Body.String())
}
