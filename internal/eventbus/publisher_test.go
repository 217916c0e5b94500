package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mlnas/MirrorScan/internal/models"
)

func TestNATSExecutor_FailsWhenDisconnected(t *testing.T) {
	action := models.NewContainmentAction("scan-1", models.ContainIsolateModel, "", "critical band")

	err := NewNATSExecutor(nil).Execute(action)
	assert.Error(t, err)

	err = NewNATSExecutor(&Publisher{}).Execute(action)
	assert.Error(t, err)
}

func TestPublisher_IsConnectedNilSafe(t *testing.T) {
	p := &Publisher{}
	assert.False(t, p.IsConnected())

	// Close on a never-connected publisher is a no-op.
	p.Close()
}
