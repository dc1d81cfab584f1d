package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/electricmaze/maze"
	"github.com/Seednode/electricmaze/relay"
	"github.com/Seednode/electricmaze/retry"
	"github.com/Seednode/electricmaze/store"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, r *http.Request, status int, v any, errs chan<- error) {
	startTime := time.Now()

	data, err := json.Marshal(v)
	if err != nil {
		errs <- err
		http.Error(w, "encoding failed", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	written, err := w.Write(append(data, '\n'))
	if err != nil {
		errs <- err

		return
	}

	logf(cfg, "SERVE: %s %s (%d, %s) to %s in %s",
		r.Method,
		r.URL.Path,
		status,
		humanize.Bytes(uint64(written)),
		realIP(r),
		time.Since(startTime).Round(time.Microsecond),
	)
}

func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, status int, err error, errs chan<- error) {
	writeJSON(cfg, w, r, status, apiError{Error: err.Error()}, errs)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxMazeFileSize))
}

func serveValidate(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := readBody(w, r)
		if err != nil {
			writeError(cfg, w, r, http.StatusBadRequest, err, errs)

			return
		}

		f, err := decodeMazeFile(data)
		if err != nil {
			writeError(cfg, w, r, http.StatusBadRequest, err, errs)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, maze.Validate(f.Grid), errs)
	}
}

func serveConfigs(cfg *Config, st *store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		configs, err := st.Configs(r.Context())
		if err != nil {
			errs <- err
			writeError(cfg, w, r, http.StatusInternalServerError, err, errs)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, configs, errs)
	}
}

func serveConfig(cfg *Config, st *store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		c, err := st.Config(r.Context(), ps.ByName("name"))
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(cfg, w, r, http.StatusNotFound, err, errs)
		case err != nil:
			errs <- err
			writeError(cfg, w, r, http.StatusInternalServerError, err, errs)
		default:
			writeJSON(cfg, w, r, http.StatusOK, c, errs)
		}
	}
}

// saveConfig stores a configuration only if it is a playable maze; an
// unplayable one is answered with its validation result.
func saveConfig(cfg *Config, st *store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := readBody(w, r)
		if err != nil {
			writeError(cfg, w, r, http.StatusBadRequest, err, errs)

			return
		}

		f, err := decodeMazeFile(data)
		if err != nil {
			writeError(cfg, w, r, http.StatusBadRequest, err, errs)

			return
		}
		if f.Name == "" {
			writeError(cfg, w, r, http.StatusBadRequest, errors.New("configuration name must not be empty"), errs)

			return
		}

		if res := maze.Validate(f.Grid); !res.Valid {
			writeJSON(cfg, w, r, http.StatusUnprocessableEntity, res, errs)

			return
		}

		c, err := st.SaveConfig(r.Context(), f.Name, f.Grid)
		if err != nil {
			errs <- err
			writeError(cfg, w, r, http.StatusInternalServerError, err, errs)

			return
		}

		logf(cfg, "GAMES: Saved configuration %q", c.Name)

		writeJSON(cfg, w, r, http.StatusCreated, c, errs)
	}
}

func deleteConfig(cfg *Config, st *store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		name := ps.ByName("name")

		err := st.DeleteConfig(r.Context(), name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(cfg, w, r, http.StatusNotFound, err, errs)
		case err != nil:
			errs <- err
			writeError(cfg, w, r, http.StatusInternalServerError, err, errs)
		default:
			logf(cfg, "GAMES: Deleted configuration %q", name)
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

// recordEvent accepts connection events reported by browser clients.
func recordEvent(cfg *Config, st *store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := readBody(w, r)
		if err != nil {
			writeError(cfg, w, r, http.StatusBadRequest, err, errs)

			return
		}

		var ev relay.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			writeError(cfg, w, r, http.StatusBadRequest, err, errs)

			return
		}
		if !ev.Type.Valid() {
			writeError(cfg, w, r, http.StatusBadRequest, errors.New("unknown event type"), errs)

			return
		}

		if err := st.RecordEvent(r.Context(), ev); err != nil {
			errs <- err
			writeError(cfg, w, r, http.StatusInternalServerError, err, errs)

			return
		}

		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func serveStats(cfg *Config, st *store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		report, err := st.Stats(r.Context())
		if err != nil {
			errs <- err
			writeError(cfg, w, r, http.StatusInternalServerError, err, errs)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, report, errs)
	}
}

// clientPolicy is a retry.Policy in the browser client's units.
type clientPolicy struct {
	MaxAttempts  int     `json:"maxAttempts"`
	InitialDelay int64   `json:"initialDelay"`
	MaxDelay     int64   `json:"maxDelay"`
	Factor       float64 `json:"factor"`
	Timeout      int64   `json:"timeout,omitempty"`
}

func newClientPolicy(p retry.Policy) clientPolicy {
	return clientPolicy{
		MaxAttempts:  p.MaxAttempts,
		InitialDelay: p.InitialDelay.Milliseconds(),
		MaxDelay:     p.MaxDelay.Milliseconds(),
		Factor:       p.BackoffFactor,
		Timeout:      p.Timeout.Milliseconds(),
	}
}

// servePolicies hands browser clients the configured request and reconnect
// policies.
func servePolicies(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, r, http.StatusOK, struct {
			Request   clientPolicy `json:"request"`
			Reconnect clientPolicy `json:"reconnect"`
		}{
			Request:   newClientPolicy(cfg.requestPolicy()),
			Reconnect: newClientPolicy(cfg.reconnectPolicy()),
		}, errs)
	}
}

func registerAPI(cfg *Config, st *store.Store, mux *httprouter.Router, errs chan<- error) {
	mux.POST(cfg.prefix+"/api/validate", serveValidate(cfg, errs))

	mux.GET(cfg.prefix+"/api/configs", serveConfigs(cfg, st, errs))
	mux.POST(cfg.prefix+"/api/configs", saveConfig(cfg, st, errs))
	mux.GET(cfg.prefix+"/api/configs/:name", serveConfig(cfg, st, errs))
	mux.DELETE(cfg.prefix+"/api/configs/:name", deleteConfig(cfg, st, errs))

	mux.GET(cfg.prefix+"/api/policies", servePolicies(cfg, errs))

	mux.POST(cfg.prefix+"/api/events", recordEvent(cfg, st, errs))
	mux.GET(cfg.prefix+"/api/stats", serveStats(cfg, st, errs))
}
