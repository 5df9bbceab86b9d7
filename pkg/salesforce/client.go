// Package salesforce is the CRM client behind the lead store: JWT-authenticated
// REST access to Accounts and Contacts with client-side rate limiting.
package salesforce

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-wizard/internal/resilience"
)

// Client is the subset of the Salesforce REST API the lead store and the
// insight analyzer use.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

// ClientOption configures the client.
type ClientOption func(*sfClient)

// WithRateLimit caps API calls per second, with a burst of the integer part
// of rps (at least 1). Non-positive values disable the limit.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// transientCodes are org-side conditions that clear on their own.
var transientCodes = []string{"REQUEST_LIMIT_EXCEEDED", "UNABLE_TO_LOCK_ROW", "SERVER_UNAVAILABLE"}

// go-salesforce/v3 takes no context, so ctx only bounds the limiter wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an initialized go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *sfClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// call waits for the limiter, runs fn and wraps its error as op.
func (c *sfClient) call(ctx context.Context, op string, fn func() error) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	if err := fn(); err != nil {
		return eris.Wrap(classify(err), op)
	}
	return nil
}

// classify marks lock and limit errors transient so callers may retry.
func classify(err error) error {
	msg := err.Error()
	for _, code := range transientCodes {
		if strings.Contains(msg, code) {
			return resilience.NewTransientError(err, http.StatusServiceUnavailable)
		}
	}
	return err
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	return c.call(ctx, "sf: query", func() error {
		return c.sf.Query(soql, out)
	})
}

func (c *sfClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	var id string
	err := c.call(ctx, "sf: insert "+sObjectName, func() error {
		res, err := c.sf.InsertOne(sObjectName, record)
		if err != nil {
			return err
		}
		if !res.Success {
			return eris.Errorf("rejected: %v", res.Errors)
		}
		id = res.Id
		return nil
	})
	return id, err
}

func (c *sfClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	record := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record["Id"] = id
	return c.call(ctx, fmt.Sprintf("sf: update %s %s", sObjectName, id), func() error {
		return c.sf.UpdateOne(sObjectName, record)
	})
}
