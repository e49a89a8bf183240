package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mystore/backend/internal/domain"
)

func (a *API) handleListReturns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.ReturnQuery{
		Status: domain.ReturnStatus(strings.ToLower(q.Get("status"))),
		Limit:  parsePositiveLimit(q.Get("limit"), 100, 500),
	}
	if raw := q.Get("receipt_id"); raw != "" {
		receiptID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.Invalid("receipt_id", "must be an integer"))
			return
		}
		query.ReceiptID = receiptID
	}
	if raw := q.Get("customer_id"); raw != "" {
		customerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.Invalid("customer_id", "must be an integer"))
			return
		}
		query.CustomerID = &customerID
	}

	returns, err := a.service.ListReturns(r.Context(), query)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"returns": returns})
}

func (a *API) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ret, err := a.service.CreateReturn(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"return": ret})
}

func (a *API) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, err)
		return
	}
	ret, err := a.service.GetReturn(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"return": ret})
}

func (a *API) handleApproveReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, err)
		return
	}
	ret, err := a.service.ApproveReturn(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"return": ret})
}

// decodeDecision reads an optional {"reason": "..."} body.
func decodeDecision(r *http.Request) (domain.ReturnDecisionRequest, error) {
	var req domain.ReturnDecisionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

func (a *API) handleRejectReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, err)
		return
	}
	req, err := decodeDecision(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ret, err := a.service.RejectReturn(r.Context(), id, req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"return": ret})
}

func (a *API) handleCancelReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, err)
		return
	}
	req, err := decodeDecision(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ret, err := a.service.CancelReturn(r.Context(), id, req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"return": ret})
}

func (a *API) handleCompleteReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, err)
		return
	}
	var req domain.CompleteReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := a.service.CompleteReturn(r.Context(), id, req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRestockReturnItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, err)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		a.fail(w, err)
		return
	}
	ret, err := a.service.RestockReturnItem(r.Context(), id, itemID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"return": ret})
}
