package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ngx-pipeline/models"
	"ngx-pipeline/utils"
)

func testRetry() *utils.RetryConfig {
	return &utils.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, Logger: utils.NewLogger()}
}

func newQuotesFetcher(url string, pageSize int) *QuotesFetcher {
	return &QuotesFetcher{
		client:   NewClient(5 * time.Second),
		baseURL:  url,
		pageSize: pageSize,
		delay:    time.Millisecond,
		retry:    testRetry(),
		logger:   utils.NewLogger(),
	}
}

func newCompaniesFetcher(url string, pageSize int) *CompaniesFetcher {
	return &CompaniesFetcher{
		client:   NewClient(5 * time.Second),
		baseURL:  url,
		pageSize: pageSize,
		delay:    time.Millisecond,
		retry:    testRetry(),
		logger:   utils.NewLogger(),
	}
}

func quotePage(n int, prefix string) []models.QuoteRow {
	rows := make([]models.QuoteRow, n)
	for i := range rows {
		rows[i] = models.QuoteRow{Symbol: fmt.Sprintf("%s%d", prefix, i)}
	}
	return rows
}

func TestQuotesFetcherStopsOnShortPage(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		require.Equal(t, "100", r.URL.Query().Get("limit"))

		var rows []models.QuoteRow
		switch page {
		case 1, 2:
			rows = quotePage(100, fmt.Sprintf("P%d-", page))
		case 3:
			rows = quotePage(40, "P3-")
		default:
			t.Fatalf("unexpected request for page %d", page)
		}
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
	defer srv.Close()

	rows, err := newQuotesFetcher(srv.URL, 100).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 240)
	require.Equal(t, 3, requests, "terminal short page must not trigger a further request")
}

func TestQuotesFetcherStopsOnEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var rows []models.QuoteRow
		if page == 1 {
			rows = quotePage(100, "P1-")
		}
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
	defer srv.Close()

	rows, err := newQuotesFetcher(srv.URL, 100).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 100)
}

func TestQuotesFetcherReturnsPartialOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(quotePage(100, "P1-")))
	}))
	defer srv.Close()

	rows, err := newQuotesFetcher(srv.URL, 100).FetchAll(context.Background())
	require.Error(t, err)
	require.Len(t, rows, 100, "accumulated pages survive a later failure")

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
}

func TestQuotesFetcherEmptyResultIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode([]models.QuoteRow{}))
	}))
	defer srv.Close()

	rows, err := newQuotesFetcher(srv.URL, 100).FetchAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestQuotesFetcherMissingFieldsBecomeNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page > 1 {
			require.NoError(t, json.NewEncoder(w).Encode([]models.QuoteRow{}))
			return
		}
		_, _ = w.Write([]byte(`[{"symbol":"DANGCEM","priceEarnings":12.5},{"symbol":"GTCO"}]`))
	}))
	defer srv.Close()

	rows, err := newQuotesFetcher(srv.URL, 100).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].PriceEarnings)
	require.Equal(t, 12.5, *rows[0].PriceEarnings)
	require.Nil(t, rows[1].PriceEarnings)
	require.Nil(t, rows[1].Price)
}

func TestCompaniesFetcherStopsOnHasNextFalse(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		records := make([]models.CompanyRecord, 15)
		for i := range records {
			records[i] = models.CompanyRecord{Symbol: fmt.Sprintf("CO%d", i)}
		}
		require.NoError(t, json.NewEncoder(w).Encode(companiesEnvelope{Data: records, HasNext: false}))
	}))
	defer srv.Close()

	records, err := newCompaniesFetcher(srv.URL, 100).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 15)
	require.Equal(t, 1, requests, "hasNext=false on page 1 means exactly one page request")
}

func TestCompaniesFetcherIgnoresShortPages(t *testing.T) {
	// A page shorter than the limit with hasNext=true must NOT stop the
	// fetch — the envelope flag is the only stop condition.
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		env := companiesEnvelope{
			Data:    []models.CompanyRecord{{Symbol: fmt.Sprintf("CO-P%d", page)}},
			HasNext: page < 3,
		}
		require.NoError(t, json.NewEncoder(w).Encode(env))
	}))
	defer srv.Close()

	records, err := newCompaniesFetcher(srv.URL, 100).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, 3, requests)
}

func TestCompaniesFetcherReturnsPartialOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page > 1 {
			_, _ = w.Write([]byte(`{not json`))
			return
		}
		env := companiesEnvelope{
			Data:    []models.CompanyRecord{{Symbol: "FIRST"}},
			HasNext: true,
		}
		require.NoError(t, json.NewEncoder(w).Encode(env))
	}))
	defer srv.Close()

	records, err := newCompaniesFetcher(srv.URL, 100).FetchAll(context.Background())
	require.Error(t, err)
	require.Len(t, records, 1)
}

func TestSnapshotFetcherParsesAndFlattens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {
				"date": "2026-01-20T00:00:00Z",
				"asi": 104523.7,
				"asiChangePercent": 0.45,
				"deals": 12345,
				"volume": 450000000,
				"valueTraded": 9876543210.5,
				"marketCap": {"equity": 1.2e13, "bonds": 3.4e12, "etfs": 5.6e10, "total": 1.56e13},
				"updatedAt": "2026-01-20T15:05:00Z"
			}
		}`))
	}))
	defer srv.Close()

	f := &SnapshotFetcher{client: NewClient(5 * time.Second), url: srv.URL, logger: utils.NewLogger()}
	runDate := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)

	snap, err := f.Fetch(context.Background(), runDate)
	require.NoError(t, err)
	require.Equal(t, 2026, snap.Date.Year())
	require.Equal(t, time.January, snap.Date.Month())
	require.Equal(t, 20, snap.Date.Day(), "payload date wins over run date")
	require.NotNil(t, snap.ASI)
	require.Equal(t, 104523.7, *snap.ASI)
	require.NotNil(t, snap.MarketCapETFs)
	require.Equal(t, 5.6e10, *snap.MarketCapETFs)
	require.NotNil(t, snap.UpdatedAt)
}

func TestSnapshotFetcherRejectsSuccessFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "data": {}}`))
	}))
	defer srv.Close()

	f := &SnapshotFetcher{client: NewClient(5 * time.Second), url: srv.URL, logger: utils.NewLogger()}
	_, err := f.Fetch(context.Background(), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "success=false")
}
