package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

// handleListTransactions serves the filtered list of one kind together with
// the category breakdown of the same set. Filters: year, month and
// category (incomes also accept source).
func (s *Server) handleListTransactions(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, applog.OpList, err)
			return
		}
		q := services.ListQuery{Kind: kind}
		if q.Year, err = queryInt(r, "year"); err != nil {
			writeError(w, r, applog.OpList, err)
			return
		}
		if q.Month, err = queryInt(r, "month"); err != nil {
			writeError(w, r, applog.OpList, err)
			return
		}
		category := r.URL.Query().Get("category")
		if category == "" && kind == core.Income {
			category = r.URL.Query().Get("source")
		}
		q.Category = core.Category(strings.ToUpper(strings.TrimSpace(category)))

		list, err := s.svc.Ledger.List(r.Context(), id, q)
		if err != nil {
			writeError(w, r, applog.OpList, err)
			return
		}
		writeJSON(w, http.StatusOK, newListResponse(list))
	}
}

// handleCreateTransaction records a transaction for the owner in the path.
// A user field in the body, when present, must name the same owner.
func (s *Server) handleCreateTransaction(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := pathID(r)
		if err != nil {
			writeError(w, r, applog.OpCreate, err)
			return
		}
		var p transactionPayload
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, r, applog.OpCreate, err)
			return
		}
		if p.User != 0 && p.User != ownerID {
			writeError(w, r, applog.OpCreate, badRequest("user %d does not match path owner %d", p.User, ownerID))
			return
		}
		p.User = ownerID

		tx, err := p.toTransaction(kind)
		if err != nil {
			writeError(w, r, applog.OpCreate, err)
			return
		}
		created, err := s.svc.Ledger.CreateTransaction(r.Context(), tx)
		if err != nil {
			writeError(w, r, applog.OpCreate, err)
			return
		}
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogTransactionWritten(r.Context(), applog.OpCreate, created)
		writeJSON(w, http.StatusCreated, newTransactionResponse(created))
	}
}

func (s *Server) handleGetTransaction(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, applog.OpRead, err)
			return
		}
		tx, err := s.svc.Ledger.GetTransaction(r.Context(), kind, id)
		if err != nil {
			writeError(w, r, applog.OpRead, err)
			return
		}
		writeJSON(w, http.StatusOK, newTransactionResponse(tx))
	}
}

// handleUpdateTransaction replaces every field of the transaction except
// its owner, which cannot change.
func (s *Server) handleUpdateTransaction(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, applog.OpUpdate, err)
			return
		}
		var p transactionPayload
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, r, applog.OpUpdate, err)
			return
		}
		current, err := s.svc.Ledger.GetTransaction(r.Context(), kind, id)
		if err != nil {
			writeError(w, r, applog.OpUpdate, err)
			return
		}
		if p.User != 0 && p.User != current.OwnerID {
			writeError(w, r, applog.OpUpdate, badRequest("user cannot be changed"))
			return
		}
		p.User = current.OwnerID

		tx, err := p.toTransaction(kind)
		if err != nil {
			writeError(w, r, applog.OpUpdate, err)
			return
		}
		tx.ID = id
		updated, err := s.svc.Ledger.UpdateTransaction(r.Context(), tx)
		if err != nil {
			writeError(w, r, applog.OpUpdate, err)
			return
		}
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogTransactionWritten(r.Context(), applog.OpUpdate, updated)
		writeJSON(w, http.StatusOK, newTransactionResponse(updated))
	}
}

func (s *Server) handleDeleteTransaction(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, applog.OpDelete, err)
			return
		}
		if err := s.svc.Ledger.DeleteTransaction(r.Context(), kind, id); err != nil {
			writeError(w, r, applog.OpDelete, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
