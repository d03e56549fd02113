package mqtt

import (
	"encoding/json"
	"time"
)

// Bridge status values published to the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusTopic returns the retained bridge status topic for a prefix,
// following the bridge's leading-slash namespace.
//
// Example: /echonet/bridge/status
func StatusTopic(prefix string) string {
	return "/" + prefix + "/bridge/status"
}

// statusPayload is the JSON body of status and LWT messages.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// buildStatusPayload creates the JSON payload for status messages.
func buildStatusPayload(status, clientID, reason string) string {
	b, _ := json.Marshal(statusPayload{ //nolint:errcheck // struct of strings always marshals
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return string(b)
}
