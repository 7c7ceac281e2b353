package marketdata

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/open_interest/internal/calendar"
	"github.com/eddiefleurent/open_interest/internal/models"
)

// DefaultAlphaVantageURL is the Alpha Vantage query endpoint.
const DefaultAlphaVantageURL = "https://www.alphavantage.co/query"

const historicalOptionsFunction = "HISTORICAL_OPTIONS"

// DataType selects the Alpha Vantage response format.
type DataType string

const (
	DataTypeCSV  DataType = "csv"
	DataTypeJSON DataType = "json"
)

// ParseDataType accepts "csv" (the default for "") and "json".
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(DataTypeCSV):
		return DataTypeCSV, nil
	case string(DataTypeJSON):
		return DataTypeJSON, nil
	}
	return "", fmt.Errorf("unknown datatype %q (want csv or json)", s)
}

// AlphaVantageOptions configures an AlphaVantage source.
type AlphaVantageOptions struct {
	APIKey     string
	BaseURL    string
	DataType   DataType
	HTTPClient *http.Client
	Calendar   calendar.Oracle
	Location   *time.Location
	Now        func() time.Time
	Logger     *logrus.Logger
}

// AlphaVantage fetches end-of-day chains from the HISTORICAL_OPTIONS endpoint.
type AlphaVantage struct {
	client   *http.Client
	apiKey   string
	baseURL  string
	dataType DataType
	calendar calendar.Oracle
	loc      *time.Location
	now      func() time.Time
	logger   *logrus.Logger
}

var _ Source = (*AlphaVantage)(nil)

// NewAlphaVantage creates the source. The API key is required; everything
// else has a default.
func NewAlphaVantage(opts AlphaVantageOptions) (*AlphaVantage, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("alpha vantage API key is required")
	}
	a := &AlphaVantage{
		client:   opts.HTTPClient,
		apiKey:   opts.APIKey,
		baseURL:  opts.BaseURL,
		dataType: opts.DataType,
		calendar: opts.Calendar,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if a.client == nil {
		a.client = &http.Client{Timeout: 30 * time.Second}
	}
	if a.baseURL == "" {
		a.baseURL = DefaultAlphaVantageURL
	}
	if a.dataType == "" {
		a.dataType = DataTypeCSV
	}
	if a.loc == nil {
		a.loc = calendar.NewYork()
	}
	if a.calendar == nil {
		a.calendar = calendar.NewNYSE(a.loc)
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.logger == nil {
		a.logger = logrus.StandardLogger()
	}
	return a, nil
}

// FetchRecords downloads the chain of symbol as of date. Dates without
// published data yield ErrNoData without a request.
func (a *AlphaVantage) FetchRecords(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	day := calendar.Day(date, a.loc)
	dayStr := day.Format(calendar.DateLayout)

	ok, err := calendar.IsDataAvailable(ctx, a.calendar, day, a.now().In(a.loc))
	if err != nil {
		return nil, fmt.Errorf("check availability of %s: %w", dayStr, err)
	}
	if !ok {
		return nil, noData("%s has no published data for %s", sym, dayStr)
	}

	params := url.Values{}
	params.Set("function", historicalOptionsFunction)
	params.Set("symbol", sym)
	params.Set("date", dayStr)
	params.Set("datatype", string(a.dataType))
	params.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "open-interest/1.0 (+alphavantage)")

	log := a.logger.WithFields(logrus.Fields{"symbol": sym, "date": dayStr, "datatype": a.dataType})
	log.Debug("Fetching historical options")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alpha vantage request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Warn("Failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Provider: "alphavantage", Status: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	var records []models.RawRecord
	switch {
	case mediaType == "application/json":
		records, err = decodeJSONRecords(resp.Body)
	case a.dataType == DataTypeCSV:
		records, err = decodeCSVRecords(resp.Body)
	default:
		err = noData("unexpected content type %q", mediaType)
	}
	if err != nil {
		if errors.Is(err, ErrNoData) {
			log.WithError(err).Info("Provider returned no usable data")
		}
		return nil, err
	}

	log.WithField("records", len(records)).Debug("Fetched historical options")
	return records, nil
}

type alphaVantageJSON struct {
	Message      string           `json:"message"`
	ErrorMessage string           `json:"Error Message"`
	Information  string           `json:"Information"`
	Note         string           `json:"Note"`
	Data         []map[string]any `json:"data"`
}

// decodeJSONRecords reads a JSON payload. Provider notices (rate limits,
// invalid symbols) come back as 200 with a message field.
func decodeJSONRecords(r io.Reader) ([]models.RawRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var payload alphaVantageJSON
	if err := dec.Decode(&payload); err != nil {
		return nil, noData("invalid JSON payload: %v", err)
	}

	switch {
	case payload.ErrorMessage != "":
		return nil, noData("%s", payload.ErrorMessage)
	case payload.Information != "":
		return nil, noData("%s", payload.Information)
	case payload.Note != "":
		return nil, noData("%s", payload.Note)
	case payload.Message != "" && !strings.EqualFold(payload.Message, "success"):
		return nil, noData("%s", payload.Message)
	}
	if len(payload.Data) == 0 {
		return nil, noData("empty data set")
	}

	records := make([]models.RawRecord, 0, len(payload.Data))
	for _, row := range payload.Data {
		rec := make(models.RawRecord, len(row))
		for k, v := range row {
			rec[k] = stringify(v)
		}
		records = append(records, rec)
	}
	return records, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// decodeCSVRecords reads a header-keyed CSV payload. A structurally broken
// file is treated as no data.
func decodeCSVRecords(r io.Reader) ([]models.RawRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, noData("empty CSV payload")
	}
	if err != nil {
		return nil, noData("invalid CSV header: %v", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var records []models.RawRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, noData("invalid CSV: %v", err)
		}
		rec := make(models.RawRecord, len(header))
		for i, h := range header {
			rec[h] = row[i]
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, noData("CSV payload has no rows")
	}
	return records, nil
}
