package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/wa-gateway/internal/audit"
)

// commandTimeout bounds one MQTT-triggered lifecycle operation. It covers
// a full restart's delays.
const commandTimeout = 60 * time.Second

// Commands accepted on the session command topic.
const (
	CommandProvision        = "provision"
	CommandRestart          = "restart"
	CommandRestartWebSocket = "restart-websocket"
	CommandLogout           = "logout"
	CommandCleanup          = "cleanup"
)

var (
	// ErrUnknownCommand is returned for command payloads with an
	// unrecognised action.
	ErrUnknownCommand = errors.New("gateway: unknown command")

	// ErrMalformedCommand is returned when a command payload is not a
	// JSON Command.
	ErrMalformedCommand = errors.New("gateway: malformed command")
)

// Command is the JSON payload of a session command message.
type Command struct {
	Action string `json:"action"`
}

// SubscribeCommands routes lifecycle commands published on
// <prefix>/session/<tenant>/command to the matching operation.
// It is a no-op when no MQTT client is configured.
func (s *Service) SubscribeCommands(qos byte) error {
	if s.mqtt == nil {
		return nil
	}
	if err := s.mqtt.SubscribeSessionCommands(qos, s.handleCommand); err != nil {
		return fmt.Errorf("subscribing to session commands: %w", err)
	}
	s.logger.Info("listening for session commands", "topic", s.mqtt.Topics().AllSessionCommands())
	return nil
}

// handleCommand implements mqtt.SessionHandler.
func (s *Service) handleCommand(tenantID string, payload []byte) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrMalformedCommand, tenantID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	ctx = WithSource(ctx, audit.SourceMQTT)

	s.logger.Info("session command received", "tenant_id", tenantID, "action", cmd.Action)
	return s.Execute(ctx, tenantID, cmd)
}

// Execute runs one lifecycle command against a tenant.
func (s *Service) Execute(ctx context.Context, tenantID string, cmd Command) error {
	var err error
	switch cmd.Action {
	case CommandProvision:
		_, err = s.Provision(ctx, tenantID)
	case CommandRestart:
		_, err = s.FullRestart(ctx, tenantID)
	case CommandRestartWebSocket:
		_, err = s.RestartTransport(ctx, tenantID)
	case CommandLogout:
		_, err = s.Logout(ctx, tenantID)
	case CommandCleanup:
		if _, _, err = s.registry.Resolve(tenantID); err == nil {
			s.CleanupTempFiles(ctx, tenantID)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", cmd.Action, tenantID, err)
	}
	return nil
}
