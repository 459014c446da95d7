package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/vitibrasil/internal/auth"
	"github.com/JonMunkholm/vitibrasil/internal/core"
	"github.com/JonMunkholm/vitibrasil/internal/logging"
	"github.com/JonMunkholm/vitibrasil/internal/web/templates"
)

const (
	msgYearRequired     = "O parâmetro 'ano' é obrigatório."
	msgCategoryRequired = "O parâmetro 'categoria' é obrigatório."
	msgMissingLogin     = "Usuário ou senha não informados"
	msgInvalidLogin     = "Usuário ou senha incorretos.  Acesso não autorizado."

	maxLoginBody       = 1 << 16
	defaultHistorySize = 50
	statusPageHistory  = 20
)

// loginRequest is the body of POST /login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin exchanges the configured credentials for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	body := http.MaxBytesReader(w, r.Body, maxLoginBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"msg": msgMissingLogin})
		return
	}

	tok, err := s.opts.Auth.Login(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		writeJSON(w, http.StatusBadRequest, map[string]string{"msg": msgMissingLogin})
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		logging.FromContext(r.Context()).Warn("login rejected", "username", req.Username)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": msgInvalidLogin})
		return
	case err != nil:
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": tok.AccessToken})
}

// handleLoad reloads every dataset from the sources.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithFields(r.Context(), "trigger", "http")
	logger.Info("reload requested")

	status, err := s.service.Load(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logger.Info("reload completed", "generation", status.GenerationID)
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// handleClear empties the cache.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.service.Clear(r.Context())
	logging.FromContext(r.Context()).Info("cache cleared via http")
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// handleStatus returns the cache status without loading.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

// handleHistory returns recent loads and clears, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		http.NotFound(w, r)
		return
	}
	limit := parseIntParam(r, "limite", defaultHistorySize)

	events, err := s.opts.History.Recent(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleHealth reports liveness. The cache may still be empty.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"cache":  string(s.service.Status().State),
	})
}

// handleProduction returns the production of a year.
func (s *Server) handleProduction(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	records, err := s.service.ProductionByYear(r.Context(), year)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// productionTotal is one element of the producao_por_categoria response.
type productionTotal struct {
	Year     int     `json:"ano"`
	Category string  `json:"categoria"`
	Total    float64 `json:"total"`
}

// handleProductionByCategory returns the production total of a category.
func (s *Server) handleProductionByCategory(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	category := strings.TrimSpace(r.URL.Query().Get("categoria"))
	if category == "" {
		badRequest(w, msgCategoryRequired)
		return
	}

	total, err := s.service.ProductionTotalByCategory(r.Context(), category, year)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, []productionTotal{{Year: year, Category: category, Total: total}})
}

// handleCommercialization returns the commercialization of a year.
func (s *Server) handleCommercialization(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	records, err := s.service.CommercializationByYear(r.Context(), year)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleProcessing returns the processing of one grape type in a year.
func (s *Server) handleProcessing(w http.ResponseWriter, r *http.Request) {
	g, ok := core.ParseGrapeType(chi.URLParam(r, "grapeType"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	records, err := s.service.ProcessingByYearAndGrapeType(r.Context(), year, g)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleTrade returns the imports or exports of one trade category in a year.
func (s *Server) handleTrade(d core.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := core.ParseTradeCategory(chi.URLParam(r, "category"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		year, ok := yearParam(w, r)
		if !ok {
			return
		}
		records, err := s.service.TradeByYearAndCategory(r.Context(), year, c, d)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// yearsResponse is the body of /vitibrasil/anos/{dataset}.
type yearsResponse struct {
	Dataset core.DatasetID `json:"dataset"`
	Years   []int          `json:"anos"`
}

// handleYears lists the years available in a dataset.
func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	id := core.DatasetID(chi.URLParam(r, "dataset"))
	years, err := s.service.Years(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, yearsResponse{Dataset: id, Years: years})
}

// handleStatusPage renders the HTML status page.
func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := s.service.Status()

	defs := s.service.Cache().Datasets()
	rows := make([]templates.DatasetRow, len(defs))
	for i, def := range defs {
		rows[i] = templates.DatasetRow{
			ID:       def.ID,
			Label:    def.Label,
			FileName: def.FileName,
			Facts:    status.Facts[def.ID],
		}
	}

	data := templates.StatusData{
		Status:   status,
		Datasets: rows,
		Now:      time.Now(),
	}

	// Don't fail the page if history is unavailable
	if s.opts.History != nil {
		if events, err := s.opts.History.Recent(ctx, statusPageHistory); err == nil {
			data.History = events
		} else {
			logging.FromContext(ctx).Warn("status page: history unavailable", "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.StatusPage(data).Render(ctx, w); err != nil {
		logging.FromContext(ctx).Error("status page render failed", "error", err)
	}
}

// yearParam reads the required "ano" query parameter, writing the 400
// response itself when it is missing or not an integer.
func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("ano")))
	if err != nil {
		badRequest(w, msgYearRequired)
		return 0, false
	}
	return year, true
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
