package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/solutionhub/platform/pkg/common/httpclient"
	"github.com/solutionhub/platform/pkg/common/logger"
)

var (
	// ErrUnavailable signals a network failure, timeout, or upstream 5xx.
	// Page-level recovery is the caller's job; no retries happen here.
	ErrUnavailable = errors.New("registry unavailable")

	// ErrRateLimited signals upstream throttling (HTTP 429). Callers back
	// off longer than for plain unavailability.
	ErrRateLimited = errors.New("registry rate limited")
)

const (
	minPageSize = 10
	maxPageSize = 500
)

// Client is a stateless adapter over the PNCP consulta API.
type Client struct {
	baseURL      string
	userAgent    string
	listClient   *http.Client
	detailClient *http.Client
}

func NewClient(baseURL, userAgent string, listTimeout, detailTimeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		userAgent:    userAgent,
		listClient:   httpclient.New(listTimeout),
		detailClient: httpclient.New(detailTimeout),
	}
}

// ListByPublicationDate fetches one page of tenders published inside the
// given window. Pagination metadata is returned verbatim.
func (c *Client) ListByPublicationDate(ctx context.Context, params SearchParams) (*Page, error) {
	pageSize := params.PageSize
	if pageSize < minPageSize {
		pageSize = minPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := params.Page
	if page < 1 {
		page = 1
	}

	query := url.Values{}
	query.Set("dataInicial", params.StartDate)
	query.Set("dataFinal", params.EndDate)
	query.Set("pagina", strconv.Itoa(page))
	query.Set("tamanhoPagina", strconv.Itoa(pageSize))
	if params.OrgCNPJ != "" {
		query.Set("cnpjOrgao", params.OrgCNPJ)
	}
	if params.Modalidade != "" {
		query.Set("modalidade", params.Modalidade)
	}

	endpoint := c.baseURL + "/contratacao/por-data-de-publicacao?" + query.Encode()

	body, err := c.get(ctx, c.listClient, endpoint)
	if err != nil {
		return nil, err
	}

	// A window with no publications answers 204 with no body.
	if len(body) == 0 {
		return &Page{}, nil
	}

	var result Page
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding registry page: %w", err)
	}

	return &result, nil
}

// TenderItems fetches the line items of one tender. This is a secondary
// call: failures are logged and an empty slice is returned instead of an
// error, so enrichment never blocks a sync run.
func (c *Client) TenderItems(ctx context.Context, controlNumber string) []Item {
	endpoint := fmt.Sprintf("%s/contratacao/%s/itens", c.baseURL, url.PathEscape(controlNumber))

	body, err := c.get(ctx, c.detailClient, endpoint)
	if err != nil {
		logger.Log.WithError(err).WithField("control_number", controlNumber).Debug("tender items fetch failed")
		return nil
	}

	var items []Item
	if err := json.Unmarshal(body, &items); err != nil {
		logger.Log.WithError(err).WithField("control_number", controlNumber).Debug("tender items decode failed")
		return nil
	}
	return items
}

// TenderDocuments fetches attached document references, tolerating failure
// the same way TenderItems does.
func (c *Client) TenderDocuments(ctx context.Context, controlNumber string) []Document {
	endpoint := fmt.Sprintf("%s/contratacao/%s/documentos", c.baseURL, url.PathEscape(controlNumber))

	body, err := c.get(ctx, c.detailClient, endpoint)
	if err != nil {
		logger.Log.WithError(err).WithField("control_number", controlNumber).Debug("tender documents fetch failed")
		return nil
	}

	var docs []Document
	if err := json.Unmarshal(body, &docs); err != nil {
		logger.Log.WithError(err).WithField("control_number", controlNumber).Debug("tender documents decode failed")
		return nil
	}
	return docs
}

func (c *Client) get(ctx context.Context, client *http.Client, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusNoContent:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("registry returned %d: %s", resp.StatusCode, string(body))
	}
}
