package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/openbridge/converter-core/pkg/app/errors"
	"github.com/openbridge/converter-core/pkg/events"
)

type mockQueue struct {
	SendFunc func(ctx context.Context, payload any) error
	sent     []any
}

func (m *mockQueue) Send(ctx context.Context, payload any) error {
	m.sent = append(m.sent, payload)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, payload)
	}
	return nil
}

func newTestRouter(queue QueueForwarder) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, queue, zap.NewNop()).Register(r)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var got errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestCreateConversion_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	handler := newTestRouter(&mockQueue{})

	rec := doJSON(t, handler, http.MethodPost, "/v1/conversion", "{invalid")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, string(apperrors.CodeValidation), got.Code)
}

func TestCreateConversion_MissingFields_ReturnsBadRequest(t *testing.T) {
	handler := newTestRouter(&mockQueue{})

	rec := doJSON(t, handler, http.MethodPost, "/v1/conversion", `{"token_pair_id":"abc"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, string(apperrors.CodeValidation), got.Code)
}

func TestCreateConversion_RejectsUnknownCreator(t *testing.T) {
	handler := newTestRouter(&mockQueue{})

	body := `{
		"token_pair_id": "abc",
		"amount": "100",
		"from_address": "0xfrom",
		"to_address": "addr_to",
		"block_number": 10,
		"signature": "0xsig",
		"created_by": "SOMEONE_ELSE"
	}`
	rec := doJSON(t, handler, http.MethodPost, "/v1/conversion", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, string(apperrors.CodeValidation), got.Code)
}

func TestConversionHistory_RequiresAddress(t *testing.T) {
	handler := newTestRouter(&mockQueue{})

	rec := doJSON(t, handler, http.MethodGet, "/v1/conversion/history", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, string(apperrors.CodeValidation), got.Code)
}

func TestConversionCount_RequiresAddress(t *testing.T) {
	handler := newTestRouter(&mockQueue{})

	rec := doJSON(t, handler, http.MethodGet, "/v1/conversion/count", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestEvents_ForwardsNativeEvent(t *testing.T) {
	queue := &mockQueue{}
	handler := newTestRouter(queue)

	body := `{
		"format": "native",
		"payload": {"name": "Conversion", "data": {"amount": "100"}}
	}`
	rec := doJSON(t, handler, http.MethodPost, "/v1/events", body)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got["forwarded"])

	require.Len(t, queue.sent, 1)
	ev, ok := queue.sent[0].(events.CanonicalEvent)
	require.True(t, ok, "expected a canonical event on the queue, got %T", queue.sent[0])
	assert.Equal(t, "ethereum", ev.BlockchainName)
}

func TestIngestEvents_BridgeBatchForwardsEachRecord(t *testing.T) {
	queue := &mockQueue{}
	handler := newTestRouter(queue)

	body := `{
		"format": "bridge",
		"payload": {"records": [
			{"body": "{\"blockchain_name\":\"cardano\",\"blockchain_event\":{}}"},
			{"body": "{\"blockchain_name\":\"ethereum\",\"blockchain_event\":{}}"}
		]}
	}`
	rec := doJSON(t, handler, http.MethodPost, "/v1/events", body)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, queue.sent, 2)
}

func TestIngestEvents_UnknownFormat_ReturnsBadRequest(t *testing.T) {
	queue := &mockQueue{}
	handler := newTestRouter(queue)

	rec := doJSON(t, handler, http.MethodPost, "/v1/events", `{"format":"carrier-pigeon","payload":{}}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, queue.sent)
}

func TestIngestEvents_MalformedPayload_ForwardsNothing(t *testing.T) {
	queue := &mockQueue{}
	handler := newTestRouter(queue)

	body := `{
		"format": "bridge",
		"payload": {"records": [{"body": "not-json"}]}
	}`
	rec := doJSON(t, handler, http.MethodPost, "/v1/events", body)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, string(apperrors.CodeUnableToParseEvent), got.Code)
	assert.Empty(t, queue.sent)
}

func TestIngestEvents_QueueFailure_ReturnsBadGateway(t *testing.T) {
	queue := &mockQueue{
		SendFunc: func(ctx context.Context, payload any) error {
			return errors.New("broker unavailable")
		},
	}
	handler := newTestRouter(queue)

	body := `{
		"format": "native",
		"payload": {"name": "Conversion", "data": {"amount": "100"}}
	}`
	rec := doJSON(t, handler, http.MethodPost, "/v1/events", body)

	require.Equal(t, http.StatusBadGateway, rec.Code)
}
