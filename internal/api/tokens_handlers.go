package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"splpulse/internal/models"
)

func parsePageLimit(r *http.Request) (page, limit int, ok bool) {
	page, limit = 1, 20
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, false
		}
		page = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return 0, 0, false
		}
		limit = n
	}
	return page, limit, true
}

func parseWindow(r *http.Request) (time.Duration, bool) {
	v := r.URL.Query().Get("window")
	switch v {
	case "", "1h":
		return time.Hour, true
	case "1m":
		return time.Minute, true
	case "5m":
		return 5 * time.Minute, true
	default:
		return 0, false
	}
}

// handleListTokens implements §4.J listLatest / §6.1 GET /api/tokens.
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := parsePageLimit(r)
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid page or limit")
		return
	}

	rows, total, err := s.repo.ListLatest(r.Context(), (page-1)*limit, limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": rows,
		"pagination": map[string]interface{}{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

type comprehensiveResponse struct {
	Mint               string            `json:"mint"`
	Name               string            `json:"name,omitempty"`
	Symbol             string            `json:"symbol,omitempty"`
	TotalSupply        float64           `json:"totalSupply"`
	PriceUsd           float64           `json:"priceUsd"`
	PriceNative        float64           `json:"priceNative"`
	MarketCap          float64           `json:"marketCap"`
	ConcentrationRatio float64           `json:"concentrationRatio"`
	LastUpdated        time.Time         `json:"lastUpdated"`
	Risk               *models.RiskReport `json:"risk,omitempty"`
}

// handleTokenMetrics implements §4.J comprehensive / §6.1 GET
// /api/tokens/:mint/metrics. Token info, latest price, top holders, and
// risk are fetched in parallel, per spec; a missing LatestState
// triggers an auto-enrol via updateMint before the response is built.
func (s *Server) handleTokenMetrics(w http.ResponseWriter, r *http.Request) {
	mint := mux.Vars(r)["mint"]
	if _, ok := parseWindow(r); !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid window")
		return
	}

	ctx := r.Context()

	var snap *models.PriceSnapshot
	var holders []models.HolderBalance
	var risk *models.RiskReport

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sn, err := s.eng.CurrentOf(gctx, mint)
		if err != nil {
			return err
		}
		if sn == nil {
			fresh, err := s.eng.UpdateMint(gctx, mint)
			if err != nil {
				return err
			}
			sn = &fresh
		}
		snap = sn
		return nil
	})
	g.Go(func() error {
		h, err := s.holder.ReadTopHolders(gctx, mint, 10)
		if err == nil {
			holders = h
		}
		return nil
	})
	g.Go(func() error {
		rep, err := s.risk.Report(gctx, mint)
		if err == nil {
			risk = rep
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	var concentration float64
	for _, h := range holders {
		concentration += h.SharePct
	}
	if concentration > 100 {
		concentration = 100
	}

	writeJSON(w, http.StatusOK, comprehensiveResponse{
		Mint:               snap.Mint,
		TotalSupply:        snap.TotalSupply,
		PriceUsd:           snap.PriceUsd,
		PriceNative:        snap.PriceNative,
		MarketCap:          snap.MarketCap,
		ConcentrationRatio: concentration,
		LastUpdated:        snap.AsOf,
		Risk:               risk,
	})
}

// handleTopHolders implements §4.J topHolders / §6.1 GET
// /api/tokens/:mint/holders/top, wrapped by cachedHandler for the
// 5-minute cache named in §4.J.
func (s *Server) handleTopHolders(w http.ResponseWriter, r *http.Request) {
	mint := mux.Vars(r)["mint"]
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeAPIError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	holders, err := s.holder.ReadTopHolders(r.Context(), mint, limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  holders,
		"total": len(holders),
		"limit": limit,
	})
}

// handleHistory implements §4.J history / §6.1 GET
// /api/tokens/:mint/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	mint := mux.Vars(r)["mint"]
	window, ok := parseWindow(r)
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid window")
		return
	}

	now := time.Now()
	entries, err := s.repo.HistoryInRange(r.Context(), mint, now.Add(-window), now, 1000)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   entries,
		"window": r.URL.Query().Get("window"),
		"total":  len(entries),
	})
}
