package common

import (
	"os"

	"github.com/apex/log"
)

// Component base structure for a Component
type Component struct {
	LogTags log.Fields
}

// GetUnitTestNatsURI fetch the NATS URI for running unit tests against a
// live server
func GetUnitTestNatsURI() string {
	if uri, ok := os.LookupEnv("NATS_TEST_URI"); ok {
		return uri
	}
	return "nats://127.0.0.1:4222"
}
