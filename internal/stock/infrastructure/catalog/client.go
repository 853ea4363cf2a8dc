package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/stock-reservation/internal/stock/application"
)

// Client looks products up in the product API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		tracer: otel.Tracer("product-catalog"),
	}
}

func (c *Client) Lookup(ctx context.Context, sku string) (application.ProductDetails, bool, error) {
	target := c.baseURL + "/" + url.PathEscape(sku)
	ctx, span := c.tracer.Start(ctx, "GetProduct", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.url", target),
			attribute.String("http.method", http.MethodGet),
		))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		span.RecordError(err)
		return application.ProductDetails{}, false, err
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return application.ProductDetails{}, false, fmt.Errorf("failed to access product API: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return application.ProductDetails{}, false, nil
	default:
		err := fmt.Errorf("product API returned status %s", resp.Status)
		span.SetStatus(codes.Error, err.Error())
		return application.ProductDetails{}, false, err
	}

	var details application.ProductDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		span.RecordError(err)
		return application.ProductDetails{}, false, fmt.Errorf("decode product: %w", err)
	}
	return details, true, nil
}
