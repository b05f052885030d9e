package pixel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pixel-relay/internal/sink"
)

func TestDispatcherBuffersWhileUnresolved(t *testing.T) {
	mem := sink.NewMemory()
	d := NewDispatcher(mem)

	d.Dispatch(sink.Record{"event": "one"})
	d.Dispatch(sink.Record{"event": "two"})

	assert.False(t, d.Resolved())
	assert.Equal(t, 2, d.BufferLen())
	assert.Equal(t, 0, mem.Len())
}

func TestDispatcherResolveDrainsFIFO(t *testing.T) {
	mem := sink.NewMemory()
	d := NewDispatcher(mem)

	for i := 0; i < 5; i++ {
		d.Dispatch(sink.Record{"event": fmt.Sprintf("e%d", i)})
	}
	d.Resolve(Grants{Analytics: true})

	records := mem.Records()
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("e%d", i), rec["event"])
	}
	assert.True(t, d.Resolved())
	assert.Equal(t, 0, d.BufferLen())
	assert.Equal(t, Grants{Analytics: true}, d.Grants())
}

func TestDispatcherForwardsDirectlyAfterResolve(t *testing.T) {
	mem := sink.NewMemory()
	d := NewDispatcher(mem)

	d.Resolve(Grants{})
	d.Dispatch(sink.Record{"event": "late"})

	assert.Equal(t, 1, mem.Len())
	assert.Equal(t, 0, d.BufferLen())
}

func TestDispatcherResolveIsIdempotent(t *testing.T) {
	mem := sink.NewMemory()
	d := NewDispatcher(mem)

	d.Dispatch(sink.Record{"event": "buffered"})
	d.Resolve(Grants{Analytics: true})
	d.Resolve(Grants{Analytics: true})

	assert.Equal(t, 1, mem.Len())
}

func TestDispatcherBypassSkipsGate(t *testing.T) {
	mem := sink.NewMemory()
	d := NewDispatcher(mem)

	d.Dispatch(sink.Record{"event": "gated"})
	d.Bypass(sink.Record{"event": "direct"})

	// The bypassed record lands first even though the gated record was
	// dispatched earlier.
	require.Equal(t, 1, mem.Len())
	assert.Equal(t, "direct", mem.Records()[0]["event"])

	d.Resolve(Grants{})
	records := mem.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "gated", records[1]["event"])
}
