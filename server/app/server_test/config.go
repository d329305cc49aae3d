package server_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/buildbeaver/jobvars/server/app"
	"github.com/buildbeaver/jobvars/server/services/encryption"
	"github.com/buildbeaver/jobvars/server/services/job_variables"
)

const TestServerURL = "https://ci.example.com"

func TestConfig(t *testing.T) *app.ServerConfig {
	test256bitKeyStr := "abcdefghijklmnopqrstuvwxyz123456"
	var test256bitKey [32]byte
	copy(test256bitKey[:], test256bitKeyStr)

	return &app.ServerConfig{
		EncryptionConfig: encryption.KeyManagerConfig{
			Type:           encryption.LocalKeyManagerType,
			LocalMasterKey: &test256bitKey,
		},
		ComposerConfig: job_variables.ComposerConfig{
			ServerURL:     TestServerURL,
			ServerName:    "GitLab",
			ServerVersion: "test",
		},
		LogLevels: "",
		// Each test server gets its own registry so that metrics are not shared between tests
		MetricsRegisterer: prometheus.NewRegistry(),
	}
}
