package http

import (
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

func (s *Server) handleListOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := s.svc.Ledger.ListOwners(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]ownerResponse, len(owners))
	for i, o := range owners {
		out[i] = newOwnerResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateOwner(w http.ResponseWriter, r *http.Request) {
	var p ownerPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	o, err := p.toOwner()
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	created, err := s.svc.Ledger.CreateOwner(r.Context(), o)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOwnerResponse(created))
}

// handleGetOwner returns the owner together with all of their incomes and
// expenses, newest first.
func (s *Server) handleGetOwner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	o, err := s.svc.Ledger.GetOwner(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	incomes, err := s.svc.Ledger.List(r.Context(), id, services.ListQuery{Kind: core.Income})
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	expenses, err := s.svc.Ledger.List(r.Context(), id, services.ListQuery{Kind: core.Expense})
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, ownerDetailResponse{
		ownerResponse: newOwnerResponse(o),
		Incomes:       newTransactionResponses(incomes.Items),
		Expenses:      newTransactionResponses(expenses.Items),
	})
}

// handleUpdateOwner replaces the profile fields. Budget values in the body
// are ignored; they change only through the budget endpoint.
func (s *Server) handleUpdateOwner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	var p ownerPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	o, err := p.toOwner()
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	o.ID = id
	updated, err := s.svc.Ledger.UpdateOwner(r.Context(), o)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, newOwnerResponse(updated))
}

func (s *Server) handleDeleteOwner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := s.svc.Ledger.DeleteOwner(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
