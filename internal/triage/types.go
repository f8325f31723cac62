// Package triage implements the remote Envoy triage data layer: building the
// read request, hydrating it through a transport, and deriving summaries from
// the returned diagnostic snapshot.
package triage

import "encoding/json"

// HostAddress identifies the target proxy instance.
type HostAddress struct {
	Host string `json:"host"`
	Port uint32 `json:"port,omitempty"`
}

// IncludeSet declares which diagnostic sections the backend must collect.
// Every flag is always serialized, including false ones.
type IncludeSet struct {
	Clusters   bool `json:"clusters"`
	ConfigDump bool `json:"configDump"`
	Listeners  bool `json:"listeners"`
	Runtime    bool `json:"runtime"`
	Stats      bool `json:"stats"`
	ServerInfo bool `json:"serverInfo"`
}

// ReadOperation is one address to collect diagnostics for.
type ReadOperation struct {
	Address HostAddress `json:"address"`
	Include IncludeSet  `json:"include"`
}

// ReadRequest is the body of POST /v1/envoytriage/read.
type ReadRequest struct {
	Operations []ReadOperation `json:"operations"`
}

// ReadResponse is the backend response body.
type ReadResponse struct {
	Results []Result `json:"results"`
}

// Envelope wraps the decoded response body the way the transport hands it to
// the data layer: { data: { results: [...] } }.
type Envelope struct {
	Data ReadResponse `json:"data"`
}

// NodeMetadata carries the Envoy service node identifiers.
type NodeMetadata struct {
	ServiceNode    string `json:"serviceNode,omitempty"`
	ServiceZone    string `json:"serviceZone,omitempty"`
	ServiceCluster string `json:"serviceCluster,omitempty"`
}

// Result is the backend output for a single read operation.
type Result struct {
	Address      HostAddress   `json:"address"`
	NodeMetadata *NodeMetadata `json:"nodeMetadata,omitempty"`
	Output       *Output       `json:"output,omitempty"`
}

// Output holds the diagnostic sections. Each section is optional: nil means
// the backend could not collect it.
type Output struct {
	Clusters   *Clusters   `json:"clusters,omitempty"`
	ConfigDump *ConfigDump `json:"configDump,omitempty"`
	Listeners  *Listeners  `json:"listeners,omitempty"`
	Runtime    *Runtime    `json:"runtime,omitempty"`
	Stats      *Stats      `json:"stats,omitempty"`
	ServerInfo *ServerInfo `json:"serverInfo,omitempty"`
}

// Clusters is the /clusters admin section.
type Clusters struct {
	ClusterStatuses []ClusterStatus `json:"clusterStatuses"`
}

// ClusterStatus is one upstream cluster and the health of its hosts.
type ClusterStatus struct {
	Name         string       `json:"name"`
	HostStatuses []HostStatus `json:"hostStatuses"`
}

// HostStatus is the health of one upstream host.
type HostStatus struct {
	Address HostAddress `json:"address"`
	Healthy bool        `json:"healthy"`
}

// Failing reports whether at least one host of the cluster is unhealthy.
func (c ClusterStatus) Failing() bool {
	for _, h := range c.HostStatuses {
		if !h.Healthy {
			return true
		}
	}
	return false
}

// ConfigDump is the raw /config_dump payload.
type ConfigDump struct {
	Value json.RawMessage `json:"value,omitempty"`
}

// Listeners is the /listeners admin section.
type Listeners struct {
	ListenerStatuses []ListenerStatus `json:"listenerStatuses"`
}

// ListenerStatus is one listener and its bound address.
type ListenerStatus struct {
	Name         string `json:"name"`
	LocalAddress string `json:"localAddress,omitempty"`
}

// Runtime is the /runtime admin section.
type Runtime struct {
	Entries []RuntimeEntry `json:"entries"`
}

// RuntimeEntry is a single runtime key override.
type RuntimeEntry struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Stats is the /stats admin section.
type Stats struct {
	Stats []Stat `json:"stats"`
}

// Stat is one counter or gauge.
type Stat struct {
	Key   string `json:"key"`
	Value uint64 `json:"value"`
}

// ServerInfo is the raw /server_info payload.
type ServerInfo struct {
	Value json.RawMessage `json:"value,omitempty"`
}
