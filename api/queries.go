package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// query returns the last value of a chain query, refreshing it first when
// the refresh parameter is true.
// GET /queries/{queryName}?refresh=true
func (a *API) query(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, QueryURLParam)
	q, ok := a.queries[name]
	if !ok {
		ErrQueryNotFound.With(name).Write(w)
		return
	}
	if raw := r.URL.Query().Get(RefreshQueryParam); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			ErrMalformedParam.Withf("%s: %v", RefreshQueryParam, err).Write(w)
			return
		}
		if refresh {
			if err := q.RefreshNow(r.Context()); err != nil {
				ErrQueryRefreshFailed.WithErr(err).Write(w)
				return
			}
		}
	}
	httpWriteJSON(w, q.Current())
}
