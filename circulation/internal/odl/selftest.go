package odl

import (
	"context"
	"time"
)

// SelfTestResult is the outcome of one integration check.
type SelfTestResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// SelfTestRunner exercises a configured distributor integration. It takes
// the client as an explicit dependency rather than being mixed into it.
type SelfTestRunner struct {
	client    StatusClient
	statusURL string
}

func NewSelfTestRunner(client StatusClient, statusURL string) *SelfTestRunner {
	return &SelfTestRunner{client: client, statusURL: statusURL}
}

// Run performs the checks and reports one result per check. It never
// returns an error; failures are captured in the results.
func (s *SelfTestRunner) Run(ctx context.Context) []SelfTestResult {
	results := make([]SelfTestResult, 0, 1)
	results = append(results, s.check(ctx, "fetch license status document", func(ctx context.Context) error {
		_, err := s.client.GetStatus(ctx, s.statusURL)
		return err
	}))
	return results
}

func (s *SelfTestRunner) check(ctx context.Context, name string, fn func(ctx context.Context) error) SelfTestResult {
	start := time.Now()
	err := fn(ctx)
	res := SelfTestResult{
		Name:     name,
		Success:  err == nil,
		Duration: time.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
