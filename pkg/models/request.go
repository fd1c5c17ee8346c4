package models

// FetchRequest describes one data request from a consumer.
type FetchRequest struct {
	// Params are the flat query parameters sent to the provider.
	Params   map[string]string `json:"params"`
	Category string            `json:"category,omitempty"`
	Priority Priority          `json:"priority"`
	// Cost is the quota units the call consumes. Zero means 1.
	Cost int `json:"cost,omitempty"`
}

// Units returns the effective cost of the request.
func (r FetchRequest) Units() int {
	if r.Cost < 1 {
		return 1
	}
	return r.Cost
}

// Endpoint is the provider operation named by the request, used as the
// ledger endpoint label.
func (r FetchRequest) Endpoint() string {
	if fn, ok := r.Params["function"]; ok && fn != "" {
		return fn
	}
	if ep, ok := r.Params["endpoint"]; ok && ep != "" {
		return ep
	}
	return "default"
}
