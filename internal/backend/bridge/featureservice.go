package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// maxPages bounds paging in case the service keeps reporting more results.
const maxPages = 1000

type featureQueryResponse struct {
	Features              []featureServiceFeature `json:"features"`
	ExceededTransferLimit bool                    `json:"exceededTransferLimit"`
	Error                 *featureServiceError    `json:"error"`
}

type featureServiceFeature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	} `json:"geometry"`
}

type featureServiceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FeatureServiceSource queries an ArcGIS feature layer over its REST API.
type FeatureServiceSource struct {
	LayerURL string
	Fields   FieldMapping
	PageSize int

	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*featureQueryResponse]
}

func NewFeatureServiceSource(layerURL string, fields FieldMapping, timeout time.Duration) *FeatureServiceSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FeatureServiceSource{
		LayerURL: strings.TrimRight(layerURL, "/"),
		Fields:   fields.withDefaults(),
		client:   &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*featureQueryResponse](gobreaker.Settings{
			Name:        "feature-service",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		}),
	}
}

func (s *FeatureServiceSource) Load(ctx context.Context) ([]Bridge, error) {
	var bridges []Bridge
	offset := 0

	for page := 0; page < maxPages; page++ {
		resp, err := s.breaker.Execute(func() (*featureQueryResponse, error) {
			return s.query(ctx, offset)
		})
		if err != nil {
			return nil, err
		}

		for i, f := range resp.Features {
			if f.Geometry == nil || f.Geometry.X == nil || f.Geometry.Y == nil {
				log.Warn().Int("index", offset+i).Msg("skipping feature without geometry")
				continue
			}
			loc := Location{Lon: *f.Geometry.X, Lat: *f.Geometry.Y}
			b, err := fromAttributes(f.Attributes, s.Fields, loc)
			if err != nil {
				log.Warn().Int("index", offset+i).Err(err).Msg("skipping feature")
				continue
			}
			bridges = append(bridges, b)
		}

		if !resp.ExceededTransferLimit || len(resp.Features) == 0 {
			return bridges, nil
		}
		offset += len(resp.Features)
	}
	return nil, fmt.Errorf("feature service paging did not finish after %d pages", maxPages)
}

func (s *FeatureServiceSource) queryURL(offset int) string {
	q := url.Values{}
	q.Set("where", "1=1")
	q.Set("outFields", "*")
	q.Set("returnGeometry", "true")
	q.Set("outSR", "4326")
	q.Set("f", "json")
	if offset > 0 {
		q.Set("resultOffset", strconv.Itoa(offset))
	}
	if s.PageSize > 0 {
		q.Set("resultRecordCount", strconv.Itoa(s.PageSize))
	}
	return s.LayerURL + "/query?" + q.Encode()
}

func (s *FeatureServiceSource) query(ctx context.Context, offset int) (*featureQueryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.queryURL(offset), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feature query: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feature query failed: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feature query returned status %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature query response: %w", err)
	}

	var out featureQueryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode feature query response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("feature service error %d: %s", out.Error.Code, out.Error.Message)
	}
	return &out, nil
}
