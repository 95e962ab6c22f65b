package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "wagateway"

// Topics builds the gateway's MQTT topic names under a common prefix.
//
// Session topics are keyed by tenant:
//
//	topics := mqtt.Topics{Prefix: "wagateway"}
//	topics.SessionState("tenant-1")
//	// Returns: "wagateway/session/tenant-1/state"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// SessionState is the retained topic carrying a tenant's lifecycle state.
//
// Example: wagateway/session/tenant-1/state
func (t Topics) SessionState(tenantID string) string {
	return t.prefix() + "/session/" + tenantID + "/state"
}

// SessionPairing carries pairing codes as they are issued.
//
// Example: wagateway/session/tenant-1/pairing
func (t Topics) SessionPairing(tenantID string) string {
	return t.prefix() + "/session/" + tenantID + "/pairing"
}

// SessionCommand receives remote lifecycle commands for a tenant.
//
// Example: wagateway/session/tenant-1/command
func (t Topics) SessionCommand(tenantID string) string {
	return t.prefix() + "/session/" + tenantID + "/command"
}

// SystemStatus is the retained online/offline topic, also used for the LWT.
//
// Example: wagateway/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// AllSessionCommands matches the command topic of every tenant.
//
// Pattern: wagateway/session/+/command
func (t Topics) AllSessionCommands() string {
	return t.prefix() + "/session/+/command"
}

// validTenant reports whether tenantID fits in one topic level.
func validTenant(tenantID string) error {
	if tenantID == "" || strings.ContainsAny(tenantID, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, tenantID)
	}
	return nil
}

// TenantFromTopic extracts the tenant segment from a session topic.
// It returns false when topic is not a session topic under this prefix.
func (t Topics) TenantFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/session/")
	if !ok {
		return "", false
	}
	tenant, _, ok := strings.Cut(rest, "/")
	if !ok || tenant == "" {
		return "", false
	}
	return tenant, true
}
