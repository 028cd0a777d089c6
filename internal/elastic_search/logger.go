package elastic_search

import "go.uber.org/zap"

type ElasticLogger struct{}

func (ElasticLogger) Printf(format string, v ...interface{}) {
	zap.S().Debugf("ElasticSearch: "+format, v...)
}
