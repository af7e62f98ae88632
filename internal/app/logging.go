package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/version"
)

// SetupLogger включает JSON-логи; уровень задаётся LOG_LEVEL, по умолчанию info.
func SetupLogger(env *Env) {
	log.SetFormatter(&log.JSONFormatter{})
	level := log.InfoLevel.String()
	env.String(&level, "LOG_LEVEL")
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).Warn("unknown log level, using info")
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

// componentLogger возвращает логгер сервиса с полями сборки.
func componentLogger(component string) *log.Entry {
	v, commit, date := version.Info()
	return log.WithFields(log.Fields{
		"component":  component,
		"version":    v,
		"commit":     commit,
		"build_date": date,
	})
}
