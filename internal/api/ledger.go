package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/egcoder/telegram-ai-bot/internal/ledger"
)

// LedgerAPI provides read-only access to the audit ledger
type LedgerAPI struct {
	store *ledger.Store
	now   func() time.Time
}

// NewLedgerAPI creates a new ledger API
func NewLedgerAPI(store *ledger.Store) *LedgerAPI {
	return &LedgerAPI{store: store, now: time.Now}
}

// RegisterRoutes registers ledger API routes (all read-only)
func (api *LedgerAPI) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/", api.handleListEntries)       // GET /api/v1/ledger
		r.Get("/summary", api.handleGetSummary) // GET /api/v1/ledger/summary
		r.Get("/verify", api.handleVerifyChain) // GET /api/v1/ledger/verify
	})
}

// handleListEntries returns ledger entries, newest first
// GET /api/v1/ledger?action=&actor=&entity_id=&limit=
func (api *LedgerAPI) handleListEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := ledger.QueryOptions{
		Action:   query.Get("action"),
		Actor:    query.Get("actor"),
		EntityID: query.Get("entity_id"),
		Limit:    100,
	}
	if limit := query.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 && l <= 1000 {
			opts.Limit = l
		}
	}

	entries, err := api.store.Query(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}

	count, _ := api.store.Count(r.Context())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries":       entries,
		"count":         len(entries),
		"total_entries": count,
		"limit":         opts.Limit,
	})
}

// handleGetSummary returns ledger statistics
// GET /api/v1/ledger/summary
func (api *LedgerAPI) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := api.store.GetSummary(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleVerifyChain verifies the integrity of the ledger chain
// GET /api/v1/ledger/verify
func (api *LedgerAPI) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	err := api.store.VerifyChain(r.Context())

	result := map[string]interface{}{
		"chain_valid": err == nil,
		"verified_at": api.now().UTC(),
	}

	if err != nil {
		result["error"] = err.Error()
		var chainErr *ledger.ChainError
		if errors.As(err, &chainErr) {
			result["error_type"] = chainErr.Type
			result["entry_num"] = chainErr.EntryNum
			result["entry_id"] = chainErr.EntryID
		}
	}

	count, _ := api.store.Count(r.Context())
	result["total_entries"] = count

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
