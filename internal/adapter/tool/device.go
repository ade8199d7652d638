package tool

import (
	"context"
	"fmt"
	"log/slog"

	"pocketsage/internal/domain"
)

// Capabilities holds the optional platform hooks the device tools need.
// Each field is resolved once at startup; a nil field means the host
// lacks that capability and the corresponding tool fails fast instead
// of probing at call time.
type Capabilities struct {
	Toast     func(ctx context.Context, message string) error
	LaunchApp func(ctx context.Context, app string) error
	Vibrate   func(ctx context.Context, durationMS int) error
	Battery   func(ctx context.Context) (BatteryStatus, error)
	Clipboard func(ctx context.Context) (string, error)
}

// BatteryStatus is the host's battery snapshot.
type BatteryStatus struct {
	Level    int  `json:"level"` // percent
	Charging bool `json:"charging"`
}

// DeviceTools builds the device capability tools. Every tool is
// registered even when its capability is absent, so the status view
// stays complete; absent capabilities yield a typed failure.
func DeviceTools(caps Capabilities, logger *slog.Logger) []domain.Tool {
	return []domain.Tool{
		{
			Name:        "show_toast",
			Description: "Display a brief notification message on the device screen.",
			Parameters: domain.ParamSpec{
				Properties: map[string]domain.Param{
					"message": {Type: "string", Description: "Text to display"},
				},
				Required: []string{"message"},
			},
			Execute: Handler("show_toast", logger, func(ctx context.Context, p struct {
				Message string `json:"message"`
			}) (any, error) {
				if caps.Toast == nil {
					return nil, capabilityMissing("toast")
				}
				if err := caps.Toast(ctx, p.Message); err != nil {
					return nil, err
				}
				return "Displayed notification.", nil
			}),
		},
		{
			Name:        "open_application",
			Description: "Launch an installed application by name.",
			Parameters: domain.ParamSpec{
				Properties: map[string]domain.Param{
					"app": {Type: "string", Description: "Application name or identifier"},
				},
				Required: []string{"app"},
			},
			Execute: Handler("open_application", logger, func(ctx context.Context, p struct {
				App string `json:"app"`
			}) (any, error) {
				if caps.LaunchApp == nil {
					return nil, capabilityMissing("app launch")
				}
				if err := caps.LaunchApp(ctx, p.App); err != nil {
					return nil, err
				}
				return fmt.Sprintf("Opened %s.", p.App), nil
			}),
		},
		{
			Name:        "vibrate_device",
			Description: "Vibrate the device for a given duration in milliseconds.",
			Parameters: domain.ParamSpec{
				Properties: map[string]domain.Param{
					"duration_ms": {Type: "integer", Description: "Vibration length, default 500"},
				},
			},
			Execute: Handler("vibrate_device", logger, func(ctx context.Context, p struct {
				DurationMS int `json:"duration_ms"`
			}) (any, error) {
				if caps.Vibrate == nil {
					return nil, capabilityMissing("haptics")
				}
				d := p.DurationMS
				if d <= 0 {
					d = 500
				}
				if err := caps.Vibrate(ctx, d); err != nil {
					return nil, err
				}
				return "Vibrated.", nil
			}),
		},
		{
			Name:        "get_battery_status",
			Description: "Read the current battery level and charging state.",
			Execute: Handler("get_battery_status", logger, func(ctx context.Context, _ struct{}) (any, error) {
				if caps.Battery == nil {
					return nil, capabilityMissing("battery")
				}
				status, err := caps.Battery(ctx)
				if err != nil {
					return nil, err
				}
				return status, nil
			}),
		},
		{
			Name:        "read_clipboard",
			Description: "Read the current clipboard contents.",
			Execute: Handler("read_clipboard", logger, func(ctx context.Context, _ struct{}) (any, error) {
				if caps.Clipboard == nil {
					return nil, capabilityMissing("clipboard")
				}
				text, err := caps.Clipboard(ctx)
				if err != nil {
					return nil, err
				}
				if text == "" {
					return "Clipboard is empty.", nil
				}
				return text, nil
			}),
		},
	}
}

func capabilityMissing(name string) error {
	return domain.NewDomainError("device", domain.ErrCapabilityMissing, name)
}
