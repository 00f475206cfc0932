package amqp

import (
	"encoding/json"
	"time"
)

// RefreshRequest asks the refresh worker to invalidate the cache and rebuild
// the snapshot from source.
type RefreshRequest struct {
	RequestedBy string    `json:"requested_by"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewRefreshRequest(requestedBy string) *RefreshRequest {
	return &RefreshRequest{RequestedBy: requestedBy, Timestamp: time.Now()}
}

func (m *RefreshRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RefreshRequestFromJSON(data []byte) (*RefreshRequest, error) {
	var msg RefreshRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SnapshotRefreshed announces that a new normalized snapshot is available,
// so dashboard processes can drop their own caches.
type SnapshotRefreshed struct {
	Pledges   int       `json:"pledges"`
	Payments  int       `json:"payments"`
	LoadedAt  time.Time `json:"loaded_at"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *SnapshotRefreshed) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SnapshotRefreshedFromJSON(data []byte) (*SnapshotRefreshed, error) {
	var msg SnapshotRefreshed
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
