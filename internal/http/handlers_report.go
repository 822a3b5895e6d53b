package http

import (
	"net/http"

	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

func (s *Server) handleNetIncome(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, applog.OpAggregate, err)
		return
	}
	today, err := todayFrom(r, s.now())
	if err != nil {
		writeError(w, r, applog.OpAggregate, err)
		return
	}
	net, err := s.svc.NetIncome.NetIncome(r.Context(), id, today)
	if err != nil {
		writeError(w, r, applog.OpAggregate, err)
		return
	}
	writeJSON(w, http.StatusOK, netIncomeResponse{NetIncome: money(net)})
}

// handleGraphData serves both series for ?scale= (3y, 1y, 6m, 3m or 1m).
func (s *Server) handleGraphData(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, applog.OpAggregate, err)
		return
	}
	today, err := todayFrom(r, s.now())
	if err != nil {
		writeError(w, r, applog.OpAggregate, err)
		return
	}
	scale, err := services.ParseScale(r.URL.Query().Get("scale"))
	if err != nil {
		writeError(w, r, applog.OpAggregate, err)
		return
	}
	graph, err := s.svc.NetIncome.Graph(r.Context(), id, scale, today)
	if err != nil {
		writeError(w, r, applog.OpAggregate, err)
		return
	}
	writeJSON(w, http.StatusOK, newGraphResponse(graph))
}

// handleUpcomingExpenses rolls the owner's recurring expenses forward to
// today and returns those due within the horizon.
func (s *Server) handleUpcomingExpenses(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, applog.OpRollforward, err)
		return
	}
	today, err := todayFrom(r, s.now())
	if err != nil {
		writeError(w, r, applog.OpRollforward, err)
		return
	}
	upcoming, err := s.svc.Recurring.Rollforward(r.Context(), id, today)
	if err != nil {
		writeError(w, r, applog.OpRollforward, err)
		return
	}
	writeJSON(w, http.StatusOK, upcomingResponse{
		Today:    today.String(),
		Expenses: newTransactionResponses(upcoming),
	})
}

// handleGetBudget reports the halves named by non-empty incomeGoal and
// expenseBudget query parameters.
func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, applog.OpBudget, err)
		return
	}
	today, err := todayFrom(r, s.now())
	if err != nil {
		writeError(w, r, applog.OpBudget, err)
		return
	}
	q := r.URL.Query()
	report, err := s.svc.Budget.Get(r.Context(), id, today, q.Get("incomeGoal") != "", q.Get("expenseBudget") != "")
	if err != nil {
		writeError(w, r, applog.OpBudget, err)
		return
	}
	writeJSON(w, http.StatusOK, newBudgetResponse(report))
}

// handleSetBudget stores the incomeGoal and expenseBudget query values that
// are present and reports the halves that were set.
func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, applog.OpBudget, err)
		return
	}
	today, err := todayFrom(r, s.now())
	if err != nil {
		writeError(w, r, applog.OpBudget, err)
		return
	}
	incomeGoal, err := budgetParam(r, "incomeGoal")
	if err != nil {
		writeError(w, r, applog.OpBudget, err)
		return
	}
	expenseBudget, err := budgetParam(r, "expenseBudget")
	if err != nil {
		writeError(w, r, applog.OpBudget, err)
		return
	}
	if incomeGoal == nil && expenseBudget == nil {
		writeError(w, r, applog.OpBudget, badRequest("incomeGoal or expenseBudget is required"))
		return
	}
	report, err := s.svc.Budget.Set(r.Context(), id, today, incomeGoal, expenseBudget)
	if err != nil {
		writeError(w, r, applog.OpBudget, err)
		return
	}
	writeJSON(w, http.StatusOK, newBudgetResponse(report))
}
