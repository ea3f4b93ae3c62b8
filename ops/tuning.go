package ops

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/evan-idocoding/zwatch/rt/tuning"
)

type tuningSnapshotResponse struct {
	OK    bool          `json:"ok"`
	Items []tuning.Item `json:"items"`
}

type tuningOverridesResponse struct {
	OK        bool                  `json:"ok"`
	Overrides []tuning.OverrideItem `json:"overrides"`
}

type tuningItemResponse struct {
	OK   bool        `json:"ok"`
	Item tuning.Item `json:"item"`
}

// TuningSnapshotHandler returns a handler that lists every tuning variable. GET/HEAD only.
func TuningSnapshotHandler(t *tuning.Tuning, opts ...Option) http.Handler {
	if t == nil {
		panic("ops: nil tuning.Tuning")
	}
	cfg := applyOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if !readOnly(w, r, format) {
			return
		}
		snap := t.Snapshot()
		var tl textLines
		for _, it := range snap.Items {
			renderTuningItem(&tl, it)
		}
		write(w, r, format, http.StatusOK, tuningSnapshotResponse{OK: true, Items: snap.Items}, tl.String())
	})
}

// TuningOverridesHandler returns a handler that lists variables differing from their
// defaults, as key<TAB>value lines. GET/HEAD only.
func TuningOverridesHandler(t *tuning.Tuning, opts ...Option) http.Handler {
	if t == nil {
		panic("ops: nil tuning.Tuning")
	}
	cfg := applyOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if !readOnly(w, r, format) {
			return
		}
		ov := t.ExportOverrides()
		var b strings.Builder
		for _, o := range ov {
			b.WriteString(o.Key + "\t" + o.Value + "\n")
		}
		if ov == nil {
			ov = []tuning.OverrideItem{}
		}
		write(w, r, format, http.StatusOK, tuningOverridesResponse{OK: true, Overrides: ov}, b.String())
	})
}

// TuningSetHandler returns a handler that sets a variable from its string form.
//
// POST only. Query: ?key=<key>&value=<value>.
func TuningSetHandler(t *tuning.Tuning, opts ...Option) http.Handler {
	return tuningWrite(t, opts, func(r *http.Request, key string) error {
		if r.URL == nil || !r.URL.Query().Has("value") {
			return errMissingValue
		}
		return t.SetFromString(key, r.URL.Query().Get("value"))
	})
}

// TuningResetHandler returns a handler that resets a variable.
//
// POST only. Query: ?key=<key>&to=default|last (default "default").
func TuningResetHandler(t *tuning.Tuning, opts ...Option) http.Handler {
	return tuningWrite(t, opts, func(r *http.Request, key string) error {
		switch to := r.URL.Query().Get("to"); to {
		case "", "default":
			return t.ResetToDefault(key)
		case "last":
			return t.ResetToLastValue(key)
		default:
			return fmt.Errorf("%w: to=%q", errBadReset, to)
		}
	})
}

var (
	errMissingValue = errors.New("missing value")
	errBadReset     = errors.New("invalid reset target (want default or last)")
)

func tuningWrite(t *tuning.Tuning, opts []Option, apply func(*http.Request, string) error) http.Handler {
	if t == nil {
		panic("ops: nil tuning.Tuning")
	}
	cfg := applyOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if !allowMethods(w, r, format, http.MethodPost) {
			return
		}
		key, ok := queryRequired(r, "key")
		if !ok {
			writeError(w, r, format, http.StatusBadRequest, "missing key")
			return
		}
		if err := apply(r, key); err != nil {
			writeError(w, r, format, tuningErrorCode(err), err.Error())
			return
		}
		it, _ := t.Lookup(key)
		var tl textLines
		renderTuningItem(&tl, it)
		write(w, r, format, http.StatusOK, tuningItemResponse{OK: true, Item: it}, tl.String())
	})
}

func tuningErrorCode(err error) int {
	switch {
	case errors.Is(err, tuning.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tuning.ErrNoLastValue), errors.Is(err, tuning.ErrReentrantWrite):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func renderTuningItem(tl *textLines, it tuning.Item) {
	sec := "tuning." + it.Key
	tl.add(sec, "type", string(it.Type))
	tl.add(sec, "value", fmt.Sprint(it.Value))
	tl.add(sec, "default", fmt.Sprint(it.DefaultValue))
	tl.add(sec, "source", it.Source.String())
	tl.addTime(sec, "last_updated_at", it.LastUpdatedAt)
}
