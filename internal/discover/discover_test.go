package discover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/555Russich/18.fl-auto-response/internal/clock"
	"github.com/555Russich/18.fl-auto-response/internal/driver"
	"github.com/555Russich/18.fl-auto-response/internal/driver/drivertest"
	"github.com/555Russich/18.fl-auto-response/internal/schemas"
	"github.com/555Russich/18.fl-auto-response/internal/types"
)

const apiURL = "https://profi.ru/backoffice/api/"

func newDiscoverer(t *testing.T, drv driver.Driver) *Discoverer {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	d, err := New(drv, Options{
		APIPattern:   "https://profi.ru/backoffice/api/*",
		FindMethod:   "findOrders",
		GetMethod:    "getOrder",
		Location:     loc,
		PollInterval: time.Millisecond,
		Clock:        clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return d
}

func ordersResponse(ids ...any) driver.Exchange {
	orders := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, map[string]any{"id": id})
	}
	return drivertest.APIResponse(apiURL, "findOrders", nil, map[string]any{"orders": orders})
}

func unauthorized(method string) driver.Exchange {
	return drivertest.APIResponse(apiURL, method, []string{types.TitleUnauthorized}, nil)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(drivertest.New(), Options{})
	assert.Error(t, err)

	_, err = New(drivertest.New(), Options{APIPattern: "[", FindMethod: "a", GetMethod: "b"})
	assert.Error(t, err)
}

func TestFindBatch_Success(t *testing.T) {
	fake := drivertest.New()
	fake.AddTraffic(
		driver.Exchange{URL: "https://profi.ru/static/app.js", Body: []byte("console.log(1)")},
		drivertest.APIResponse(apiURL, "getProfile", nil, map[string]any{"name": "me"}),
		ordersResponse(101, "102"),
	)
	d := newDiscoverer(t, fake)

	batch, err := d.FindBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, types.RecordID("101"), batch.Records[0].ID)
	assert.Equal(t, types.RecordID("102"), batch.Records[1].ID)
	assert.Equal(t, 1, fake.Clears)
	assert.Empty(t, fake.CapturedTraffic())
}

func TestFindBatch_IgnoresOtherHosts(t *testing.T) {
	fake := drivertest.New()
	other := ordersResponse(1)
	other.URL = "https://evil.example.com/backoffice/api/"
	fake.AddTraffic(other)
	d := newDiscoverer(t, fake)

	_, err := d.FindBatch(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindBatch_NotFoundAfterAttempts(t *testing.T) {
	fake := drivertest.New()
	d := newDiscoverer(t, fake)

	start := time.Now()
	_, err := d.FindBatch(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, fake.Clears)
	assert.Zero(t, fake.Refreshes)
}

func TestFindBatch_WaitsOnInjectedClock(t *testing.T) {
	fake := drivertest.New()
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	d, err := New(fake, Options{
		APIPattern:   "https://profi.ru/backoffice/api/*",
		FindMethod:   "findOrders",
		GetMethod:    "getOrder",
		PollInterval: time.Hour,
		Clock:        clk,
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = d.FindBatch(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []time.Duration{time.Hour, time.Hour}, clk.Sleeps())
}

func TestFindBatch_FoundOnLaterScan(t *testing.T) {
	fake := drivertest.New()
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	clk.OnSleep = func(time.Duration) { fake.AddTraffic(ordersResponse(7)) }
	d, err := New(fake, Options{
		APIPattern: "https://profi.ru/backoffice/api/*",
		FindMethod: "findOrders",
		GetMethod:  "getOrder",
		Clock:      clk,
	})
	require.NoError(t, err)

	batch, err := d.FindBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, []time.Duration{DefaultPollInterval}, clk.Sleeps())
}

func TestFindBatch_UnauthorizedRefreshesOnce(t *testing.T) {
	fake := drivertest.New()
	fake.AddTraffic(unauthorized("findOrders"))
	fake.OnRefresh = func(f *drivertest.Fake) error {
		f.AddTraffic(ordersResponse(7))
		return nil
	}
	d := newDiscoverer(t, fake)

	batch, err := d.FindBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, types.RecordID("7"), batch.Records[0].ID)
	assert.Equal(t, 1, fake.Refreshes)
}

func TestFindBatch_UnauthorizedTwice(t *testing.T) {
	fake := drivertest.New()
	fake.AddTraffic(unauthorized("findOrders"))
	fake.OnRefresh = func(f *drivertest.Fake) error {
		f.AddTraffic(unauthorized("findOrders"))
		return nil
	}
	d := newDiscoverer(t, fake)

	_, err := d.FindBatch(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, fake.Refreshes)
}

func TestFindBatch_RefreshFailure(t *testing.T) {
	fake := drivertest.New()
	fake.AddTraffic(unauthorized("findOrders"))
	refreshErr := &driver.Error{Op: "refresh", Cause: errors.New("target closed")}
	fake.OnRefresh = func(*drivertest.Fake) error { return refreshErr }
	d := newDiscoverer(t, fake)

	_, err := d.FindBatch(context.Background())
	require.ErrorIs(t, err, refreshErr)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFindBatch_APIError(t *testing.T) {
	fake := drivertest.New()
	fake.AddTraffic(drivertest.APIResponse(apiURL, "findOrders", []string{"Too many requests"}, nil))
	d := newDiscoverer(t, fake)

	_, err := d.FindBatch(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Too many requests", apiErr.Title)
	assert.Zero(t, fake.Refreshes)
	assert.Empty(t, fake.CapturedTraffic())
}

func TestFindBatch_UnexpectedShape(t *testing.T) {
	fake := drivertest.New()
	fake.AddTraffic(drivertest.APIResponse(apiURL, "findOrders", nil, map[string]any{"items": []int{1}}))
	d := newDiscoverer(t, fake)

	_, err := d.FindBatch(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	var ve *schemas.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Empty(t, fake.CapturedTraffic())
}

func TestFindBatch_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := newDiscoverer(t, drivertest.New())

	_, err := d.FindBatch(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFindDetail(t *testing.T) {
	fake := drivertest.New()
	fake.AddTraffic(drivertest.APIResponse(apiURL, "getOrder", nil, map[string]any{
		"order": map[string]any{
			"receivd":  "2024-03-01 15:00:00",
			"subjects": "Математика",
			"aim":      "Подготовка к ЕГЭ",
			"name":     "Анна",
		},
	}))
	d := newDiscoverer(t, fake)

	detail, err := d.FindDetail(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, types.RecordID("42"), detail.ID)
	assert.Equal(t, "Анна", detail.DisplayName)
	assert.Equal(t, "Математика\nПодготовка к ЕГЭ", detail.Text())
	assert.True(t, detail.ReceivedAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, fake.Clears)
}

func TestFindDetail_IgnoresBatchResponses(t *testing.T) {
	fake := drivertest.New()
	fake.AddTraffic(ordersResponse(1))
	d := newDiscoverer(t, fake)

	_, err := d.FindDetail(context.Background(), "1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindDetail_RejectsOtherRecord(t *testing.T) {
	fake := drivertest.New()
	fake.AddTraffic(drivertest.APIResponse(apiURL, "getOrder", nil, map[string]any{
		"order": map[string]any{
			"id":      41,
			"receivd": "2024-03-01 15:00:00",
			"name":    "Пётр",
		},
	}))
	d := newDiscoverer(t, fake)

	_, err := d.FindDetail(context.Background(), "42")
	require.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, types.ErrRecordMismatch)
	assert.Empty(t, fake.CapturedTraffic())
}
