package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuFFyGTLP/TC/pkg/api/response"
	"github.com/RuFFyGTLP/TC/pkg/memory"
)

func newMemoryHandler(t *testing.T) (*MemoryHandler, *memory.Store) {
	t.Helper()
	store := memory.NewStore(nil, memory.DefaultConfig())
	return NewMemoryHandler(store, nil), store
}

func TestMemoryHandler_RememberAndRecall(t *testing.T) {
	h, store := newMemoryHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/memory/facts",
		strings.NewReader(`{"fact":"Decidimos usar PostgreSQL para el sistema de pagos"}`))
	w := httptest.NewRecorder()
	h.RememberFact(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var fact memory.Fact
	decodeBody(t, w, &fact)
	assert.True(t, strings.HasPrefix(fact.ID, "mem-"))
	assert.Equal(t, 1, store.FactCount())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/memory/facts?q=sistema+pagos&limit=3", nil)
	w = httptest.NewRecorder()
	h.RecallFacts(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var recalled []memory.Recalled
	decodeBody(t, w, &recalled)
	require.Len(t, recalled, 1)
	assert.Equal(t, fact.ID, recalled[0].ID)
	assert.Greater(t, recalled[0].Relevance, 0.0)

	w = httptest.NewRecorder()
	h.ListFacts(w, httptest.NewRequest(http.MethodGet, "/api/v1/memory/facts/all", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var all []memory.Fact
	decodeBody(t, w, &all)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].RecallCount)
}

func TestMemoryHandler_RememberValidation(t *testing.T) {
	h, _ := newMemoryHandler(t)

	for _, body := range []string{`{}`, `{"fact":"   "}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/memory/facts", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.RememberFact(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w := httptest.NewRecorder()
	h.RecallFacts(w, httptest.NewRequest(http.MethodGet, "/api/v1/memory/facts", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMemoryHandler_EmptyLists(t *testing.T) {
	h, _ := newMemoryHandler(t)

	w := httptest.NewRecorder()
	h.ListFacts(w, httptest.NewRequest(http.MethodGet, "/api/v1/memory/facts/all", nil))
	assert.JSONEq(t, `[]`, w.Body.String())

	w = httptest.NewRecorder()
	h.RecallFacts(w, httptest.NewRequest(http.MethodGet, "/api/v1/memory/facts?q=nada", nil))
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMemoryHandler_Prune(t *testing.T) {
	h, store := newMemoryHandler(t)
	ctx := t.Context()
	for i := 0; i < 5; i++ {
		_, err := store.Remember(ctx, "hecho número "+strings.Repeat("x", i+1))
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	h.Prune(w, httptest.NewRequest(http.MethodPost, "/api/v1/memory/prune", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pruned":0,"facts":5}`, w.Body.String())
}

func TestMemoryHandler_Learn(t *testing.T) {
	h, store := newMemoryHandler(t)

	body := `{"message":"¿Qué caché usamos?","response":"Decidimos usar Redis como caché distribuida para las sesiones."}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/memory/learn", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Learn(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp learnResponse
	decodeBody(t, w, &resp)
	require.Len(t, resp.Learned, 1)
	assert.Equal(t, 1, resp.Facts)
	assert.Equal(t, 1, store.FactCount())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/memory/learn", strings.NewReader(`{"message":"hola","response":"hola"}`))
	w = httptest.NewRecorder()
	h.Learn(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"learned":[],"facts":1}`, w.Body.String())
}

func TestMemoryHandler_ContextAndStats(t *testing.T) {
	h, store := newMemoryHandler(t)
	_, err := store.Remember(t.Context(), "Importante: el despliegue se hace con Kubernetes")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.Context(w, httptest.NewRequest(http.MethodGet, "/api/v1/memory/context?q=despliegue+kubernetes", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var block map[string]string
	decodeBody(t, w, &block)
	assert.True(t, strings.HasPrefix(block["context"], "### Memoria del Agente:\n- "))

	w = httptest.NewRecorder()
	h.Context(w, httptest.NewRequest(http.MethodGet, "/api/v1/memory/context", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.GetStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/memory/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var st memory.Stats
	decodeBody(t, w, &st)
	assert.Equal(t, 1, st.LongTermFacts)
}

func TestMemoryHandler_ShortTerm(t *testing.T) {
	h, store := newMemoryHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/memory/agents/orquestador/short-term/task",
		strings.NewReader(`{"value":{"id":7,"title":"migrar"}}`))
	req = withChiURLParams(req, "agent", "orquestador", "key", "task")
	w := httptest.NewRecorder()
	h.SetShortTerm(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req = withChiURLParams(httptest.NewRequest(http.MethodGet, "/", nil), "agent", "orquestador", "key", "task")
	w = httptest.NewRecorder()
	h.GetShortTerm(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key":"task","value":{"id":7,"title":"migrar"}}`, w.Body.String())

	req = withChiURLParams(httptest.NewRequest(http.MethodGet, "/", nil), "agent", "orquestador")
	w = httptest.NewRecorder()
	h.ListShortTerm(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var entries map[string]memory.ShortTermEntry
	decodeBody(t, w, &entries)
	assert.Contains(t, entries, "task")

	req = withChiURLParams(httptest.NewRequest(http.MethodDelete, "/", nil), "agent", "orquestador", "key", "task")
	w = httptest.NewRecorder()
	h.DeleteShortTerm(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = withChiURLParams(httptest.NewRequest(http.MethodGet, "/", nil), "agent", "orquestador", "key", "task")
	w = httptest.NewRecorder()
	h.GetShortTerm(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, store.RememberShortTerm("implementador", "a", 1))
	req = withChiURLParams(httptest.NewRequest(http.MethodDelete, "/", nil), "agent", "implementador")
	w = httptest.NewRecorder()
	h.ClearShortTerm(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, store.ShortTermEntries("implementador"))
}

func TestMemoryHandler_Working(t *testing.T) {
	h, store := newMemoryHandler(t)

	req := withChiURLParam(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"value":"rama feature/pagos"}`)), "key", "branch")
	w := httptest.NewRecorder()
	h.SetWorking(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req = withChiURLParam(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"value":false}`)), "key", "dirty")
	w = httptest.NewRecorder()
	h.SetWorking(w, req)
	require.Equal(t, http.StatusOK, w.Code, "false is a valid value")

	w = httptest.NewRecorder()
	h.WorkingContext(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"branch":"rama feature/pagos","dirty":false}`, w.Body.String())

	w = httptest.NewRecorder()
	h.GetWorking(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "key", "branch"))
	assert.JSONEq(t, `{"key":"branch","value":"rama feature/pagos"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.GetWorking(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "key", "missing"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	var errResp response.ErrorResponse
	decodeBody(t, w, &errResp)
	assert.Equal(t, response.ErrCodeNotFound, errResp.Error.Code)

	w = httptest.NewRecorder()
	h.ClearWorking(w, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, store.WorkingContext())
}
