package httpengine

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/unrolled/render"
	"go.uber.org/zap"

	"github.com/satishbabariya/prisma-go-client/internal/debug"
	"github.com/satishbabariya/prisma-go-client/internal/version"
	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

var log = debug.New("prisma:engine:http")

// NewHandler exposes e over HTTP.
func NewHandler(e engine.Engine) http.Handler {
	return createRouter(e)
}

func createRouter(e engine.Engine) *mux.Router {
	rd := render.New(render.Options{IndentJSON: true})
	router := mux.NewRouter()

	versionHandler := newVersionHandler(rd)
	router.HandleFunc("/version", versionHandler.Get).Methods("GET")

	txHandler := newTransactionHandler(e, rd)
	router.HandleFunc("/transaction/start", txHandler.Start).Methods("POST")
	router.HandleFunc("/transaction/{id}/commit", txHandler.Commit).Methods("POST")
	router.HandleFunc("/transaction/{id}/rollback", txHandler.Rollback).Methods("POST")
	router.HandleFunc("/transactions", txHandler.List).Methods("GET")

	queryHandler := newQueryHandler(e, rd)
	router.HandleFunc("/", queryHandler.Execute).Methods("POST")
	return router
}

func readJSON(r io.ReadCloser, data interface{}) error {
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return errors.WithStack(err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, data); err != nil {
		return engine.Validation("invalid request body: %v", err)
	}
	return nil
}

func renderError(rd *render.Render, w http.ResponseWriter, err error) {
	var ee *engine.Error
	if !errors.As(err, &ee) {
		ee = &engine.Error{Kind: engine.KindUnknown, Message: err.Error()}
	}
	status := statusFor(ee.Kind)
	if status == http.StatusInternalServerError {
		log.Warn("request failed", zap.Error(err))
	}
	rd.JSON(w, status, errorResponse{Error: ee})
}

type versionHandler struct {
	rd *render.Render
}

func newVersionHandler(rd *render.Render) *versionHandler {
	return &versionHandler{rd: rd}
}

func (h *versionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.rd.JSON(w, http.StatusOK, version.Get())
}

type transactionHandler struct {
	engine engine.Engine
	rd     *render.Render
}

func newTransactionHandler(e engine.Engine, rd *render.Render) *transactionHandler {
	return &transactionHandler{engine: e, rd: rd}
}

func (h *transactionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var input startRequest
	if err := readJSON(r.Body, &input); err != nil {
		renderError(h.rd, w, err)
		return
	}
	info, err := h.engine.StartTransaction(r.Context(), input.options())
	if err != nil {
		renderError(h.rd, w, err)
		return
	}
	log.Log("transaction started", zap.String("tx", info.ID))
	h.rd.JSON(w, http.StatusOK, newTxInfo(info))
}

func (h *transactionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.engine.Commit(r.Context(), id); err != nil {
		renderError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, map[string]string{})
}

func (h *transactionHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.engine.Rollback(r.Context(), id); err != nil {
		renderError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, map[string]string{})
}

func (h *transactionHandler) List(w http.ResponseWriter, r *http.Request) {
	inspector, ok := h.engine.(engine.Inspector)
	if !ok {
		renderError(h.rd, w, engine.Unsupported("engine does not list transactions"))
		return
	}
	open := inspector.OpenTransactions()
	out := make([]txInfo, 0, len(open))
	for _, info := range open {
		out = append(out, newTxInfo(info))
	}
	h.rd.JSON(w, http.StatusOK, out)
}

type queryHandler struct {
	engine engine.Engine
	rd     *render.Render
}

func newQueryHandler(e engine.Engine, rd *render.Render) *queryHandler {
	return &queryHandler{engine: e, rd: rd}
}

func (h *queryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var input operationRequest
	if err := readJSON(r.Body, &input); err != nil {
		renderError(h.rd, w, err)
		return
	}
	action := types.Action(input.Action)
	if !action.Valid() {
		renderError(h.rd, w, engine.Validation("unknown action %q", input.Action))
		return
	}
	op := types.NewOperation(input.ModelName, action, input.Query)
	if id := r.Header.Get(TransactionHeader); id != "" {
		op = op.WithTxID(id)
	}
	result, err := h.engine.Execute(r.Context(), op)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, dataResponse{Data: result})
}
