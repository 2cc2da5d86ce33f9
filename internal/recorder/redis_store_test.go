package recorder

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFormats(t *testing.T) {
	store := NewRedisStore(nil, "serial", 1000, time.Hour)

	assert.Equal(t, "serial:frames", store.frameListKey())
	assert.Equal(t, "serial:transitions", store.transitionListKey())
	assert.Equal(t, "serial:stats:rx", store.counterKey(DirectionIn))
	assert.Equal(t, "serial:stats:tx", store.counterKey(DirectionOut))

	// 未知方向归入接收计数
	assert.Equal(t, "serial:stats:rx", store.counterKey("bogus"))
}

func TestFrameRecordJSONShape(t *testing.T) {
	record := FrameRecord{
		Direction: DirectionIn,
		Payload:   "A1B2",
		Size:      2,
		CreatedAt: 1700000000000,
	}

	encoded, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"direction":"in","payload":"A1B2","size":2,"created_at":1700000000000}`,
		string(encoded))
}

func TestNormalizeQueryLimit(t *testing.T) {
	assert.Equal(t, int64(defaultQueryLimit), normalizeQueryLimit(0))
	assert.Equal(t, int64(defaultQueryLimit), normalizeQueryLimit(-5))
	assert.Equal(t, int64(10), normalizeQueryLimit(10))
	assert.Equal(t, int64(maxQueryLimit), normalizeQueryLimit(10_000))
}

func TestParseCounter(t *testing.T) {
	assert.Equal(t, int64(42), parseCounter("42"))
	assert.Equal(t, int64(0), parseCounter(nil))
	assert.Equal(t, int64(0), parseCounter("not-a-number"))
}

func TestTimeProviderOverride(t *testing.T) {
	store := NewRedisStore(nil, "serial", 1000, time.Hour)

	fixed := time.UnixMilli(1700000000000)
	store.SetTimeProvider(func() time.Time { return fixed })

	assert.Equal(t, fixed, store.now())
}
