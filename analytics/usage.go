// Package analytics reports anonymous, non-PII usage events (server
// lifecycle, tool invocation counts) to PostHog when metrics are not
// disabled: a ~/.codescalpel .env-backed anonymous installation UUID
// plus the posthog-go client, restricted to the events the tool server
// actually emits.
package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/posthog/posthog-go"
)

const (
	ServerStarted    = "scalpel:server_started"
	ServerStopped    = "scalpel:server_stopped"
	ToolCall         = "scalpel:tool_call"
	IndexingStarted  = "scalpel:indexing_started"
	IndexingComplete = "scalpel:indexing_complete"
	IndexingFailed   = "scalpel:indexing_failed"
	ClientConnected  = "scalpel:client_connected"
)

var (
	PublicKey     string
	enableMetrics bool
	appVersion    string
)

// Init enables or disables metrics reporting for the process lifetime.
func Init(disableMetrics bool) {
	enableMetrics = !disableMetrics
}

// SetVersion records the running binary's version for event properties.
func SetVersion(version string) {
	appVersion = version
}

func createEnvFile() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Println("Error getting user home directory:", err)
		return
	}
	envFile := filepath.Join(homeDir, ".codescalpel", ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(envFile), os.ModePerm); err != nil {
			fmt.Println("Error creating directory:", err)
			return
		}
		env := map[string]string{"uuid": uuid.New().String()}
		if err := godotenv.Write(env, envFile); err != nil {
			fmt.Println("Error writing to .env file:", err)
		}
	}
}

// LoadEnvFile ensures an anonymous installation UUID exists and loads it
// (plus any other ~/.codescalpel/.env entries) into the process environment.
func LoadEnvFile() {
	createEnvFile()
	envFile := filepath.Join(os.Getenv("HOME"), ".codescalpel", ".env")
	_ = godotenv.Load(envFile)
}

// ReportEvent sends event with no extra properties.
func ReportEvent(event string) {
	ReportEventWithProperties(event, nil)
}

// ReportEventWithProperties sends an event with additional properties.
// Properties must never contain PII: no file paths, source code, or
// user-identifying information, only structural/runtime metadata.
func ReportEventWithProperties(event string, properties map[string]interface{}) {
	if !enableMetrics || PublicKey == "" {
		return
	}
	disableGeoIP := false
	client, err := posthog.NewWithConfig(
		PublicKey,
		posthog.Config{
			Endpoint:     "https://us.i.posthog.com",
			DisableGeoIP: &disableGeoIP,
		},
	)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer client.Close()

	capture := posthog.Capture{
		DistinctId: os.Getenv("uuid"),
		Event:      event,
	}

	captureProperties := posthog.NewProperties()
	captureProperties.Set("os", runtime.GOOS)
	captureProperties.Set("arch", runtime.GOARCH)
	captureProperties.Set("go_version", runtime.Version())
	if appVersion != "" {
		captureProperties.Set("scalpel_version", appVersion)
	}
	for k, v := range properties {
		captureProperties.Set(k, v)
	}
	capture.Properties = captureProperties

	if err := client.Enqueue(capture); err != nil {
		fmt.Println(err)
	}
}
