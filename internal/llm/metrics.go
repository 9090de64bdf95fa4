package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavecode_llm_requests_total",
		Help: "Model backend requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavecode_llm_tokens_total",
		Help: "Tokens consumed by provider and kind (prompt, completion).",
	}, []string{"provider", "kind"})
)

func recordRequest(provider string, resp *Response, err error) {
	if err != nil {
		requestsTotal.WithLabelValues(provider, "error").Inc()
		return
	}
	requestsTotal.WithLabelValues(provider, "ok").Inc()
	if resp != nil && resp.Usage != nil {
		tokensTotal.WithLabelValues(provider, "prompt").Add(float64(resp.Usage.PromptTokens))
		tokensTotal.WithLabelValues(provider, "completion").Add(float64(resp.Usage.CompletionTokens))
	}
}
