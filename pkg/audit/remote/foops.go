package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stackvity/ontaudit/pkg/audit"
)

type foopsRequest struct {
	OntologyURI string `json:"ontologyUri"`
}

// Assess implements audit.QualityService.
func (c *Client) Assess(ctx context.Context, iri string) ([]byte, error) {
	if iri == "" {
		return nil, fmt.Errorf("%w: empty ontology IRI", audit.ErrArgument)
	}
	body, err := json.Marshal(foopsRequest{OntologyURI: iri})
	if err != nil {
		return nil, err
	}
	return c.do(ctx, ServiceQuality, http.MethodPost, c.qualityURL, "application/json", body)
}
