package triage

import (
	"fmt"
	"sort"
)

// Summary holds the counts derived from a result. It is recomputed on every
// read and never stored on its own.
type Summary struct {
	HealthyClusterCount int `json:"healthyClusterCount"`
	FailingClusterCount int `json:"failingClusterCount"`
	ListenerCount       int `json:"listenerCount"`
	RuntimeKeyCount     int `json:"runtimeKeyCount"`
	StatCount           int `json:"statCount"`
}

// Summarize derives the summary from an output. Missing sections count as
// zero, including a nil output.
func Summarize(out *Output) Summary {
	var s Summary
	if out == nil {
		return s
	}

	if out.Clusters != nil {
		for _, c := range out.Clusters.ClusterStatuses {
			if c.Failing() {
				s.FailingClusterCount++
			}
		}
		s.HealthyClusterCount = len(out.Clusters.ClusterStatuses) - s.FailingClusterCount
	}
	if out.Listeners != nil {
		s.ListenerCount = len(out.Listeners.ListenerStatuses)
	}
	if out.Runtime != nil {
		s.RuntimeKeyCount = len(out.Runtime.Entries)
	}
	if out.Stats != nil {
		s.StatCount = len(out.Stats.Stats)
	}
	return s
}

// SummarizeResult is Summarize over a possibly nil result.
func SummarizeResult(r *Result) Summary {
	if r == nil {
		return Summary{}
	}
	return Summarize(r.Output)
}

// FailingCluster names a failing cluster and its unhealthy hosts.
type FailingCluster struct {
	Name           string   `json:"name"`
	UnhealthyHosts []string `json:"unhealthyHosts"`
}

// FailingClusters lists failing clusters sorted by name.
func FailingClusters(out *Output) []FailingCluster {
	if out == nil || out.Clusters == nil {
		return nil
	}

	var failing []FailingCluster
	for _, c := range out.Clusters.ClusterStatuses {
		if !c.Failing() {
			continue
		}
		fc := FailingCluster{Name: c.Name}
		for _, h := range c.HostStatuses {
			if !h.Healthy {
				fc.UnhealthyHosts = append(fc.UnhealthyHosts, formatAddress(h.Address))
			}
		}
		failing = append(failing, fc)
	}
	sort.Slice(failing, func(i, j int) bool { return failing[i].Name < failing[j].Name })
	return failing
}

// MetadataRow is one name/value line of the details table.
type MetadataRow struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Details returns the address and node metadata rows for a result.
func Details(r *Result) []MetadataRow {
	var addr HostAddress
	var meta NodeMetadata
	if r != nil {
		addr = r.Address
		if r.NodeMetadata != nil {
			meta = *r.NodeMetadata
		}
	}
	return []MetadataRow{
		{Name: "Address", Value: formatAddress(addr)},
		{Name: "Service Node", Value: meta.ServiceNode},
		{Name: "Service Zone", Value: meta.ServiceZone},
		{Name: "Service Cluster", Value: meta.ServiceCluster},
	}
}

// SeriesPoint is one labelled value on the dashboard.
type SeriesPoint struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

// FeaturedSummary is the highlighted cluster health chart.
type FeaturedSummary struct {
	Name string        `json:"name"`
	Data []SeriesPoint `json:"data"`
}

// SummaryTile is a single counter on the dashboard.
type SummaryTile struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// DashboardView groups the featured chart and the counter tiles.
type DashboardView struct {
	Featured  FeaturedSummary `json:"featured"`
	Summaries []SummaryTile   `json:"summaries"`
}

// Dashboard lays a summary out as the dashboard tab shows it.
func Dashboard(s Summary) DashboardView {
	return DashboardView{
		Featured: FeaturedSummary{
			Name: "Clusters",
			Data: []SeriesPoint{
				{ID: "Running", Value: s.HealthyClusterCount},
				{ID: "Failing", Value: s.FailingClusterCount},
			},
		},
		Summaries: []SummaryTile{
			{Name: "Listeners", Value: s.ListenerCount},
			{Name: "Runtime Keys", Value: s.RuntimeKeyCount},
			{Name: "Stats", Value: s.StatCount},
		},
	}
}

func formatAddress(a HostAddress) string {
	if a.Port == 0 {
		return a.Host
	}
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// View is a snapshot projected for presentation: the raw result for the
// per-section tabs plus the counts, the tables and the dashboard.
type View struct {
	State           State            `json:"state"`
	Generation      uint64           `json:"generation"`
	Address         *HostAddress     `json:"address,omitempty"`
	Found           bool             `json:"found"`
	Value           *Result          `json:"value,omitempty"`
	Summary         Summary          `json:"summary"`
	Details         []MetadataRow    `json:"details,omitempty"`
	Dashboard       *DashboardView   `json:"dashboard,omitempty"`
	FailingClusters []FailingCluster `json:"failingClusters,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// NewView builds the presentation view of snap.
func NewView(snap Snapshot) View {
	v := View{
		State:      snap.State,
		Generation: snap.Generation,
		Address:    snap.Address,
		Found:      snap.Value != nil,
		Value:      snap.Value,
		Summary:    snap.Summary,
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}
	if snap.Value != nil {
		v.Details = Details(snap.Value)
		dash := Dashboard(snap.Summary)
		v.Dashboard = &dash
		v.FailingClusters = FailingClusters(snap.Value.Output)
	}
	return v
}
