package cmpapi_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consentry/consentry/internal/cmpapi"
	"github.com/consentry/consentry/internal/tcf"
)

func encodedString(t *testing.T, mutate func(*tcf.Model)) string {
	t.Helper()
	m := tcf.NewModel()
	m.Stamp(time.Now())
	m.CmpID = 300
	m.CmpVersion = 1
	if mutate != nil {
		mutate(m)
	}
	encoded, err := tcf.Encode(m)
	require.NoError(t, err)
	return encoded
}

func newAPI() *cmpapi.API {
	return cmpapi.New(cmpapi.Config{CmpID: 300, CmpVersion: 1, Logger: zerolog.Nop()})
}

type recordedEvent struct {
	status  cmpapi.EventStatus
	tc      string
	success bool
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) listen(data *cmpapi.TCData, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{status: data.EventStatus, tc: data.TCString, success: success})
}

func (r *recorder) recorded() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func TestAPI_EarlyAvailability(t *testing.T) {
	api := newAPI()

	ping := api.Ping()
	assert.True(t, ping.GDPRApplies)
	assert.True(t, ping.CMPLoaded)
	assert.Equal(t, cmpapi.StatusLoading, ping.CMPStatus)
	assert.Equal(t, cmpapi.DisplayHidden, ping.DisplayStatus)
	assert.Equal(t, 300, ping.CMPID)

	data := api.TCData()
	require.NotNil(t, data)
	assert.True(t, data.GDPRApplies)
	assert.Empty(t, data.TCString)
	assert.Empty(t, data.Purpose.Consents)
}

func TestAPI_EventOrderingScenario(t *testing.T) {
	api := newAPI()
	rec := &recorder{}
	api.AddEventListener(rec.listen)

	tc1 := encodedString(t, nil)
	tc2 := encodedString(t, func(m *tcf.Model) { m.PurposeConsents.Add(1) })

	api.Update(tc1, true, false)
	api.Update(tc2, false, true)
	api.Update(tc2, false, false)

	events := rec.recorded()
	require.Len(t, events, 3)
	assert.Equal(t, cmpapi.EventCMPUIShown, events[0].status)
	assert.Equal(t, tc1, events[0].tc)
	assert.Equal(t, cmpapi.EventUserActionComplete, events[1].status)
	assert.Equal(t, tc2, events[1].tc)
	assert.Equal(t, cmpapi.EventTCLoaded, events[2].status)
	assert.Equal(t, tc2, events[2].tc)
}

func TestAPI_RepeatedUpdatesEachFireAnEvent(t *testing.T) {
	api := newAPI()
	rec := &recorder{}
	api.AddEventListener(rec.listen)

	tc := encodedString(t, nil)
	api.Update(tc, false, false)
	api.Update(tc, false, false)
	api.Update(tc, false, false)

	assert.Len(t, rec.recorded(), 3)
}

func TestAPI_TCDataReflectsLastUpdate(t *testing.T) {
	api := newAPI()

	tc := encodedString(t, func(m *tcf.Model) {
		m.PurposeConsents.AddAll([]int{1, 4})
		m.VendorConsents.AddAll([]int{10, 755})
		m.SpecialFeatureOptins.Add(2)
	})
	api.Update(tc, false, true)

	data := api.TCData()
	assert.Equal(t, tc, data.TCString)
	assert.Equal(t, cmpapi.EventUserActionComplete, data.EventStatus)
	assert.Equal(t, cmpapi.StatusLoaded, data.CMPStatus)
	assert.True(t, data.Purpose.Consents[1])
	assert.False(t, data.Purpose.Consents[2])
	assert.True(t, data.Purpose.Consents[4])
	assert.True(t, data.Vendor.Consents[10])
	assert.True(t, data.Vendor.Consents[755])
	assert.False(t, data.Vendor.Consents[11])
	assert.True(t, data.SpecialFeatureOptins[2])
}

func TestAPI_SnapshotsAreIndependent(t *testing.T) {
	api := newAPI()
	api.Update(encodedString(t, func(m *tcf.Model) { m.PurposeConsents.Add(1) }), false, false)

	first := api.TCData()
	first.Purpose.Consents[1] = false

	second := api.TCData()
	assert.True(t, second.Purpose.Consents[1], "mutating a returned snapshot must not affect later reads")
}

func TestAPI_UndecodableStringKeepsPreviousState(t *testing.T) {
	api := newAPI()
	rec := &recorder{}
	api.AddEventListener(rec.listen)

	tc := encodedString(t, func(m *tcf.Model) { m.PurposeConsents.Add(1) })
	api.Update(tc, false, false)
	api.Update("!!!corrupt!!!", false, false)

	events := rec.recorded()
	require.Len(t, events, 2)
	assert.True(t, events[0].success)
	assert.False(t, events[1].success)
	// The surface still answers with the previous state.
	data := api.TCData()
	assert.Equal(t, tc, data.TCString)
	assert.True(t, data.Purpose.Consents[1])
}

func TestAPI_RemoveEventListener(t *testing.T) {
	api := newAPI()
	rec := &recorder{}
	id := api.AddEventListener(rec.listen)

	api.Update("", false, false)
	assert.True(t, api.RemoveEventListener(id))
	api.Update("", false, false)

	assert.Len(t, rec.recorded(), 1)
	assert.False(t, api.RemoveEventListener(id), "second removal must report not found")
}

func TestAPI_ListenersObserveInRegistrationOrder(t *testing.T) {
	api := newAPI()

	var order []string
	var mu sync.Mutex
	api.AddEventListener(func(*cmpapi.TCData, bool) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	api.AddEventListener(func(*cmpapi.TCData, bool) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})

	api.Update("", false, false)

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestAPI_PingDisplayStatusTracksVisibility(t *testing.T) {
	api := newAPI()
	tc := encodedString(t, nil)

	api.Update(tc, true, false)
	assert.Equal(t, cmpapi.DisplayVisible, api.Ping().DisplayStatus)
	assert.Equal(t, cmpapi.StatusLoaded, api.Ping().CMPStatus)

	api.Update(tc, false, true)
	assert.Equal(t, cmpapi.DisplayHidden, api.Ping().DisplayStatus)
}
