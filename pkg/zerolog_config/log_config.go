package zerolog_config

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.elastic.co/ecszerolog"
)

var appPrefix string
var setAppPrefixOnce = &sync.Once{}
var startupOnce = &sync.Once{}

// ElasticsearchWriter ships each log event to an Elasticsearch index over HTTP
type ElasticsearchWriter struct {
	URL string
}

func (ew ElasticsearchWriter) Write(p []byte) (n int, err error) {
	resp, err := http.Post(
		ew.URL+"/_doc",
		"application/json",
		bytes.NewBuffer(p),
	)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("elasticsearch returned %d", resp.StatusCode)
	}

	return len(p), nil
}

// SetAppPrefix sets the app field stamped on every log event. Call it before
// Startup; later calls are no-ops.
func SetAppPrefix(name string) {
	setAppPrefixOnce.Do(func() {
		appPrefix = name
	})
}

// Startup configures the global logger. Console output is always on; when
// elasticsearchURL is non-empty, ECS-formatted events are also shipped to the
// given index path. The level string follows zerolog naming ("debug", "info",
// ...) and falls back to info when empty or unparseable. Only the first call
// has an effect.
func Startup(elasticsearchURL, indexPath, level string) error {
	if elasticsearchURL != "" && indexPath == "" {
		return fmt.Errorf("indexPath is required when shipping logs to elasticsearch")
	}
	startupOnce.Do(func() {
		configureLogger(elasticsearchURL, indexPath, level)
	})
	return nil
}

func configureLogger(elasticsearchURL, indexPath, level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout}

	if elasticsearchURL == "" {
		log.Logger = zerolog.New(consoleWriter).With().Str("app", appPrefix).
			Timestamp().Logger()
		return
	}

	// ECS format for Elasticsearch, pretty output for the console
	ecsLogger := ecszerolog.New(&ElasticsearchWriter{
		URL: elasticsearchURL + "/" + indexPath,
	})
	multi := zerolog.MultiLevelWriter(
		ecsLogger,
		consoleWriter,
	)

	log.Logger = zerolog.New(multi).With().Str("app", appPrefix).
		Timestamp().Logger()
}
