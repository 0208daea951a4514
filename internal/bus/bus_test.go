package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

func TestBackoffSchedule_FiveAttemptsCappedAtTwoSeconds(t *testing.T) {
	assert.Len(t, backoffSchedule, 5)
	for _, d := range backoffSchedule {
		assert.LessOrEqual(t, d, 2*time.Second)
	}
	assert.Equal(t, 2*time.Second, backoffSchedule[len(backoffSchedule)-1])
}

func TestConnect_FailsFastForUnreachableServer(t *testing.T) {
	_, err := Connect(Config{
		URL:           "nats://127.0.0.1:4",
		MaxReconnects: 1,
		ReconnectWait: 10 * time.Millisecond,
	}, logger.Noop())
	assert.Error(t, err)
}
