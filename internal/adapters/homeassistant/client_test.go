package homeassistant

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestStatusHandlerFiresOnTransitionsOnly(t *testing.T) {
	c := NewClient("http://homeassistant.local:8123", "token", time.Second, testLogger())

	var transitions []bool
	c.SetStatusHandler(func(connected bool) {
		transitions = append(transitions, connected)
	})

	c.setConnected(true)
	c.setConnected(true) // no transition, no callback
	c.setConnected(false)
	c.setConnected(false)
	c.setConnected(true)

	assert.Equal(t, []bool{true, false, true}, transitions)
	assert.True(t, c.IsConnected())
}

func TestMonitoredEntityFilter(t *testing.T) {
	c := NewClient("http://homeassistant.local:8123", "token", time.Second, testLogger())
	c.SetMonitoredEntities([]string{"sensor.pv_total_energy"})

	var got []string
	c.SetStateChangeHandler(func(entityID string, value float64) {
		got = append(got, entityID)
	})

	c.handleStateChanged(&wsEventData{
		EntityID: "sensor.pv_total_energy",
		NewState: &wsStateValue{State: "1234.5"},
	})
	c.handleStateChanged(&wsEventData{
		EntityID: "sensor.unrelated",
		NewState: &wsStateValue{State: "42"},
	})
	c.handleStateChanged(&wsEventData{
		EntityID: "sensor.pv_total_energy",
		NewState: &wsStateValue{State: "unavailable"},
	})

	assert.Equal(t, []string{"sensor.pv_total_energy"}, got)
}
