package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"remotetriage/internal/logging"
)

// SSEClient represents a connected SSE client
type SSEClient struct {
	StreamID string
	Messages chan string
	Close    chan bool
}

// SSEManager fans session events out to Server-Sent Event connections
type SSEManager struct {
	clients map[string]map[*SSEClient]bool // stream id -> clients
	mu      sync.RWMutex

	sendTimeout time.Duration
}

// NewSSEManager creates a new SSE manager
func NewSSEManager() *SSEManager {
	return &SSEManager{
		clients:     make(map[string]map[*SSEClient]bool),
		sendTimeout: 500 * time.Millisecond,
	}
}

// RegisterClient adds a new SSE client for a session stream
func (m *SSEManager) RegisterClient(streamID string, client *SSEClient) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clients[streamID] == nil {
		m.clients[streamID] = make(map[*SSEClient]bool)
	}
	m.clients[streamID][client] = true
}

// UnregisterClient removes an SSE client
func (m *SSEManager) UnregisterClient(streamID string, client *SSEClient) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if clients, ok := m.clients[streamID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(m.clients, streamID)
		}
	}
}

// ClientCount returns the number of connections for a stream
func (m *SSEManager) ClientCount(streamID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[streamID])
}

// BroadcastMessage sends an event to all clients of a stream. Clients that do
// not drain their buffer within sendTimeout are dropped.
func (m *SSEManager) BroadcastMessage(streamID, eventType string, messageData interface{}) {
	m.mu.RLock()
	clients := make([]*SSEClient, 0, len(m.clients[streamID]))
	for client := range m.clients[streamID] {
		clients = append(clients, client)
	}
	m.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	jsonData, err := json.Marshal(messageData)
	if err != nil {
		logging.Error("Failed to marshal SSE message: %v", err)
		return
	}
	sseMessage := fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, string(jsonData))

	var clientsToRemove []*SSEClient
	for _, client := range clients {
		select {
		case client.Messages <- sseMessage:
		case <-time.After(m.sendTimeout):
			logging.Warning("SSE client for stream %s is not receiving messages, marking for cleanup", streamID)
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	if len(clientsToRemove) > 0 {
		m.mu.Lock()
		for _, client := range clientsToRemove {
			if clientMap, exists := m.clients[streamID]; exists {
				delete(clientMap, client)
				if len(clientMap) == 0 {
					delete(m.clients, streamID)
				}
			}
			select {
			case client.Close <- true:
			default:
			}
		}
		m.mu.Unlock()
		logging.Info("Cleaned up %d unresponsive SSE clients for stream %s", len(clientsToRemove), streamID)
	}
}

// CloseSession disconnects every client of a session stream
func (m *SSEManager) CloseSession(streamID string) {
	m.mu.Lock()
	clients := m.clients[streamID]
	delete(m.clients, streamID)
	m.mu.Unlock()

	for client := range clients {
		select {
		case client.Close <- true:
		default:
		}
	}
}
