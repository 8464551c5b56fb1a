package proxypool

import "time"

// Protocol is a proxy's dial variant.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS4 Protocol = "socks4"
	ProtocolSOCKS5 Protocol = "socks5"
)

// SelectionStrategy picks one proxy out of the active pool.
type SelectionStrategy string

const (
	StrategyWeighted    SelectionStrategy = "weighted"
	StrategyRoundRobin  SelectionStrategy = "round_robin"
	StrategyRandom      SelectionStrategy = "random"
	StrategyBest        SelectionStrategy = "best"
)

// Record is one proxy candidate and its observed health. Endpoint
// (scheme://host:port) is its identity. Score is a pure function of the
// other fields, recomputed by recomputeScore on every mutation.
type Record struct {
	Endpoint string   `json:"endpoint"`
	Source   string   `json:"source"`
	Protocol Protocol `json:"protocol"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Country  string   `json:"country,omitempty"`
	TLS      bool     `json:"tls"`

	Total   int `json:"total"`
	Success int `json:"success"`
	Fail    int `json:"fail"`

	AvgRTTSeconds float64 `json:"avg_rtt_seconds"`

	LastUsed    time.Time `json:"last_used,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   time.Time `json:"last_error,omitempty"`
	LastCheck   time.Time `json:"last_check,omitempty"`
	LastErrMsg  string    `json:"last_error_message,omitempty"`

	Healthy bool    `json:"healthy"`
	Score   float64 `json:"score"`
}

func (r *Record) successRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Success) / float64(r.Total)
}

// recomputeScore applies the scoring function from the proxy health
// model: success rate, RTT tier, success recency bonus, failure recency
// penalty, clamped to [0,100]. A never-tested record scores exactly 50.
func (r *Record) recomputeScore(now time.Time) {
	if r.Total == 0 {
		r.Score = 50
		return
	}

	successComponent := r.successRate() * 50

	var rttComponent float64
	switch {
	case r.AvgRTTSeconds <= 2:
		rttComponent = 25
	case r.AvgRTTSeconds <= 5:
		rttComponent = 15
	default:
		rttComponent = 5
	}

	var recencyBonus float64
	if !r.LastSuccess.IsZero() {
		switch age := now.Sub(r.LastSuccess); {
		case age <= time.Hour:
			recencyBonus = 15
		case age <= 6*time.Hour:
			recencyBonus = 10
		}
	}

	var failurePenalty float64
	if !r.LastError.IsZero() {
		switch age := now.Sub(r.LastError); {
		case age <= time.Hour:
			failurePenalty = 20
		case age <= 6*time.Hour:
			failurePenalty = 10
		}
	}

	score := successComponent + rttComponent + recencyBonus - failurePenalty
	r.Score = clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CachePayload is the on-disk shape of the proxy cache file.
type CachePayload struct {
	Proxies []Record  `json:"proxies"`
	Stats   Stats     `json:"stats"`
	SavedAt time.Time `json:"saved_at"`
}

type Stats struct {
	Total      int `json:"total"`
	Healthy    int `json:"healthy"`
	Pruned     int `json:"pruned"`
	RefreshRun int `json:"refresh_run"`
}
