package web

import (
	"net/http"
	"time"

	"github.com/hpungsan/sav-assist/internal/app"
	"github.com/hpungsan/sav-assist/internal/errors"
	"github.com/hpungsan/sav-assist/internal/history"
	"github.com/hpungsan/sav-assist/internal/logger"
	"github.com/hpungsan/sav-assist/internal/stats"
)

// Handlers contains HTTP route handlers for the dashboard.
type Handlers struct {
	state    *app.State
	browser  *history.Browser
	renderer *Renderer
	log      *logger.Logger
	now      func() time.Time
}

// NewHandlers wires handlers over state.
func NewHandlers(state *app.State, renderer *Renderer, log *logger.Logger) *Handlers {
	if log == nil {
		log = logger.Discard()
	}
	return &Handlers{
		state:    state,
		browser:  history.NewBrowser(state),
		renderer: renderer,
		log:      log,
		now:      time.Now,
	}
}

// HandleList handles GET /calls: the history, optionally filtered by ?q=.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	h.reload(r)
	query := r.URL.Query().Get("q")
	items := h.browser.List(query)

	data := ListPageData{
		PageData: h.renderer.page("Historique", "calls"),
		Items:    items,
		Query:    query,
		Total:    len(h.state.Logs()),
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
		return
	}

	// htmx search box swaps only the results section
	if r.Header.Get("HX-Target") == "results" {
		h.renderer.renderBlock(w, http.StatusOK, "list", "call-results", data)
		return
	}

	h.renderer.renderPage(w, r, "list", data)
}

// HandleDetail handles GET /calls/{id}: one call with its summary.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	h.reload(r)
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("call id is required"))
		return
	}

	call, err := h.browser.Select(id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, call)
		return
	}

	title := call.Summary.Subject
	if title == "" {
		title = call.CustomerName
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData:  h.renderer.page(title, "calls"),
		Call:      call,
		Issue:     renderMarkdown(call.Summary.Issue),
		Solution:  renderMarkdown(call.Summary.Solution),
		NextSteps: renderMarkdown(call.Summary.NextSteps),
	})
}

// HandleDelete handles POST /calls/{id}/delete: permanent removal, which
// requires confirm=true in the form.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.reload(r)
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("call id is required"))
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if err := h.browser.Delete(r.Context(), id, r.FormValue("confirm") == "true"); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.log.WithRequest(r).WithField("id", id).Info("call deleted from dashboard")

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/calls")
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
		return
	}

	http.Redirect(w, r, "/calls", http.StatusSeeOther)
}

// HandleStats handles GET /stats: the dashboard figures.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.reload(r)
	s := h.compute()

	maxDaily := 0
	for _, d := range s.Activity {
		maxDaily = max(maxDaily, d.Count)
	}

	h.renderer.renderPage(w, r, "stats", StatsPageData{
		PageData: h.renderer.page("Statistiques", "stats"),
		Stats:    s,
		MaxDaily: maxDaily,
	})
}

// HandleStatsAPI handles GET /api/stats.
func (h *Handlers) HandleStatsAPI(w http.ResponseWriter, r *http.Request) {
	h.reload(r)
	renderJSON(w, http.StatusOK, h.compute())
}

// reload picks up calls written by other processes. A failure is logged
// by State and the cached calls are served.
func (h *Handlers) reload(r *http.Request) {
	_ = h.state.Refresh(r.Context())
}

func (h *Handlers) compute() stats.Stats {
	return stats.Compute(h.state.Logs(), h.now(), h.renderer.loc)
}
