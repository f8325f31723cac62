package triage

// IncludeAll returns the include-set requesting every diagnostic section.
func IncludeAll() IncludeSet {
	return IncludeSet{
		Clusters:   true,
		ConfigDump: true,
		Listeners:  true,
		Runtime:    true,
		Stats:      true,
		ServerInfo: true,
	}
}

// NewReadRequest builds the single-operation read request for host. The host
// is passed through untouched; the backend decides whether it is valid.
func NewReadRequest(host string) *ReadRequest {
	return NewReadRequestFor(HostAddress{Host: host})
}

// NewReadRequestFor is NewReadRequest for a full address.
func NewReadRequestFor(addr HostAddress) *ReadRequest {
	return &ReadRequest{
		Operations: []ReadOperation{
			{
				Address: addr,
				Include: IncludeAll(),
			},
		},
	}
}

// FirstResult unwraps data.results[0], or nil when the backend returned none.
func FirstResult(env *Envelope) *Result {
	if env == nil || len(env.Data.Results) == 0 {
		return nil
	}
	r := env.Data.Results[0]
	return &r
}
