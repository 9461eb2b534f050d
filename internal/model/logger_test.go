package model

import "testing"

func TestDiscardLoggerWorksAsIntended(t *testing.T) {
	logger := DiscardLogger
	logger.Debugf("foo %d", 17)
	logger.Infof("bar %d", 17)
	logger.Warnf("baz %d", 17)
}
