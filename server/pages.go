package server

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/cardcrafter/grid"
	"github.com/hazyhaar/cardcrafter/shield"
)

var pageTemplate = template.Must(template.ParseFS(staticFS, "static/page.html"))

type pageView struct {
	Title   string
	LiveURL string
	Grid    template.HTML
}

// applyParams replays the view parameters of a grid URL onto a ready
// engine. Invalid values are ignored.
func applyParams(eng *grid.Engine, v url.Values) {
	if q := v.Get("q"); q != "" {
		eng.ApplyQuery(q)
	}
	if key, err := grid.ParseSortKey(v.Get("sort")); err == nil {
		eng.SetSort(key)
	}
	if n, err := strconv.Atoi(v.Get("per_page")); err == nil && n > 0 {
		eng.SetItemsPerPage(n)
	}
	if p, err := strconv.Atoi(v.Get("page")); err == nil {
		eng.SetPage(p)
	}
}

func exportBase(preset string) string {
	return "/grid/" + url.PathEscape(preset) + "/export"
}

func (s *Server) handleGridPage(w http.ResponseWriter, r *http.Request) {
	preset := chi.URLParam(r, "preset")
	logger := shield.GetLogger(r.Context())

	eng, err := s.newEngine(preset)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer eng.Close()

	status := http.StatusOK
	if err := eng.Init(r.Context()); err != nil {
		logger.Warn("grid init", "preset", preset, "error", err)
		status = http.StatusBadGateway
	} else {
		applyParams(eng, r.URL.Query())
	}

	fragment, err := eng.Render(grid.RenderOptions{ExportURL: exportBase(preset)})
	if err != nil {
		logger.Error("grid render", "preset", preset, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	liveURL := "/grid/" + url.PathEscape(preset) + "/live"
	if raw := r.URL.RawQuery; raw != "" {
		liveURL += "?" + raw
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	pageTemplate.Execute(w, pageView{
		Title:   preset,
		LiveURL: liveURL,
		Grid:    template.HTML(fragment),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	preset := chi.URLParam(r, "preset")
	logger := shield.GetLogger(r.Context())

	format, err := grid.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown export format"})
		return
	}
	eng, err := s.newEngine(preset)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer eng.Close()

	if !eng.Config().EnableExport {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "export disabled"})
		return
	}
	if err := eng.Init(r.Context()); err != nil {
		logger.Warn("export init", "preset", preset, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": grid.UserMessage(err)})
		return
	}
	applyParams(eng, r.URL.Query())

	file, err := eng.Export(format)
	if errors.Is(err, grid.ErrExport) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "No data to export."})
		return
	}
	if err != nil {
		logger.Error("export", "preset", preset, "format", format, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}

	w.Header().Set("Content-Type", file.MIME)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Write(file.Data)
}
