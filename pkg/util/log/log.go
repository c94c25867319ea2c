// Package log holds the process logger.
package log

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Logger is the process logger, set by InitLogger.
var Logger = log.NewNopLogger()

var plogger *prometheusLogger

// InitLogger builds the process logger writing to stderr in format
// (logfmt or json), filtered at lvl, and counting lines per level in reg.
func InitLogger(lvl dslog.Level, format string, reg prometheus.Registerer) log.Logger {
	return InitLoggerWithWriter(lvl, format, reg, os.Stderr)
}

func InitLoggerWithWriter(lvl dslog.Level, format string, reg prometheus.Registerer, w io.Writer) log.Logger {
	var base log.Logger
	if format == "json" {
		base = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		base = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}
	plogger = newPrometheusLogger(base, lvl, reg)

	Logger = log.With(plogger, "ts", log.DefaultTimestampUTC, "caller", log.Caller(3))
	return Logger
}

// prometheusLogger counts log lines by level and allows the level to be
// changed at runtime.
type prometheusLogger struct {
	baseLogger  log.Logger
	logMessages *prometheus.CounterVec

	mtx    sync.RWMutex
	logger log.Logger
}

func newPrometheusLogger(base log.Logger, lvl dslog.Level, reg prometheus.Registerer) *prometheusLogger {
	l := &prometheusLogger{
		baseLogger: base,
		logMessages: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqlflow",
			Name:      "log_messages_total",
			Help:      "Total number of log messages.",
		}, []string{"level"}),
	}
	l.Set(lvl)
	return l
}

func (pl *prometheusLogger) Set(lvl dslog.Level) {
	pl.mtx.Lock()
	defer pl.mtx.Unlock()
	pl.logger = level.NewFilter(pl.baseLogger, lvl.Option)
}

func (pl *prometheusLogger) Log(kv ...interface{}) error {
	pl.mtx.RLock()
	logger := pl.logger
	pl.mtx.RUnlock()

	err := logger.Log(kv...)
	if pl.logMessages == nil {
		return err
	}
	l := "unknown"
	for i := 1; i < len(kv); i += 2 {
		if v, ok := kv[i].(level.Value); ok {
			l = v.String()
			break
		}
	}
	pl.logMessages.WithLabelValues(l).Inc()
	return err
}

// LevelHandler reports the current log level on GET and changes it on POST
// through the log_level form value.
func LevelHandler(currentLogLevel *dslog.Level) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]string{
				"message": fmt.Sprintf("Current log level is %s", currentLogLevel.String()),
			})
		case http.MethodPost:
			logLevel := r.FormValue("log_level")
			var lvl dslog.Level
			if err := lvl.Set(logLevel); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"status":  "failed",
					"message": fmt.Sprintf("unrecognized log level %q", logLevel),
				})
				return
			}
			*currentLogLevel = lvl
			if plogger != nil {
				plogger.Set(lvl)
			}
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "success",
				"message": fmt.Sprintf("Log level set to %s", logLevel),
			})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

// CheckFatal prints an error and exits with error code 1 if err is non-nil.
func CheckFatal(location string, err error) {
	if err == nil {
		return
	}
	logger := level.Error(Logger)
	if location != "" {
		logger = log.With(logger, "msg", "error "+location)
	}
	// %+v gets the stack trace from errors using github.com/pkg/errors
	logger.Log("err", fmt.Sprintf("%+v", err))
	os.Exit(1)
}
