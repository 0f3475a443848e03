package preflight

import (
	"strings"

	"fission/internal/config"
)

// CheckNotificationsFromConfig reports which notifiers are configured. It
// never contacts the services.
func CheckNotificationsFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	var enabled []string
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		enabled = append(enabled, "ntfy")
	}
	if strings.TrimSpace(cfg.Notifications.AMQPURL) != "" {
		enabled = append(enabled, "amqp")
	}
	if len(enabled) == 0 {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Detail: strings.Join(enabled, ", ")}
}
