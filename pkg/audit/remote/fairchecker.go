package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/stackvity/ontaudit/pkg/audit"
)

// Check implements audit.FairService. The IRI travels query-escaped in the
// url parameter.
func (c *Client) Check(ctx context.Context, iri string) ([]byte, error) {
	if iri == "" {
		return nil, fmt.Errorf("%w: empty ontology IRI", audit.ErrArgument)
	}
	u, err := url.Parse(c.fairURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", audit.ErrRemoteService, ServiceFair, err)
	}
	q := u.Query()
	q.Set("url", iri)
	u.RawQuery = q.Encode()
	return c.do(ctx, ServiceFair, http.MethodGet, u.String(), "", nil)
}
