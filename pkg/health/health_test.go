package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeAdmin struct {
	exists bool
	err    error
}

func (f fakeAdmin) TableExists(context.Context, string) (bool, error) { return f.exists, f.err }

func TestRunTakesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("store", ProbeCheck(func(context.Context) error { return nil }))
	c.Register("table", TableCheck(fakeAdmin{exists: false}, "idx"))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["store"].Status)
	assert.Contains(t, report.Components["table"].Message, "idx")

	c.Register("kafka", ProbeCheck(func(context.Context) error { return errors.New("no brokers") }))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("table", TableCheck(fakeAdmin{exists: true}, "idx"))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("store", TableCheck(fakeAdmin{err: errors.New("refused")}, "idx"))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
