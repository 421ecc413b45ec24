// internal/events/emitter_test.go
package events

import (
	"context"
	"errors"
	"testing"
	"time"

	runtimeerrors "contract-runtime/internal/common/errors"
	"contract-runtime/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() ChangeEvent {
	return NewChangeEvent("PetCreated", "Pet", "p1", ChangeCreated,
		map[string]interface{}{"id": "p1", "name": "rex"}, "changes.pets")
}

func TestEmitDeliversFirstAttempt(t *testing.T) {
	rec := NewRecorder()
	emitter := NewEmitter(rec, 3, time.Millisecond, logger.NewNoOpLogger(), nil)

	err := emitter.Emit(context.Background(), testEvent())
	require.NoError(t, err)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, []string{"changes.pets"}, rec.Topics())
}

func TestEmitRetriesTransientFailures(t *testing.T) {
	rec := NewRecorder()
	rec.FailTimes(2, errors.New("broker unavailable"))
	emitter := NewEmitter(rec, 3, time.Millisecond, logger.NewNoOpLogger(), nil)

	err := emitter.Emit(context.Background(), testEvent())
	require.NoError(t, err)
	require.Len(t, rec.Events(), 1, "publication succeeds on the third attempt")
}

func TestEmitDegradesAfterExhaustingAttempts(t *testing.T) {
	rec := NewRecorder()
	rec.FailTimes(3, errors.New("broker unavailable"))
	emitter := NewEmitter(rec, 3, time.Millisecond, logger.NewNoOpLogger(), nil)

	err := emitter.Emit(context.Background(), testEvent())
	require.Error(t, err)
	assert.Equal(t, runtimeerrors.ErrCodeEventPublishDegraded, runtimeerrors.Normalize(err).Code)
	assert.Empty(t, rec.Events(), "no delivery after exhaustion, and no write re-attempt")
}

type recordingAlerter struct {
	events []ChangeEvent
	causes []error
}

func (a *recordingAlerter) Alert(_ context.Context, event ChangeEvent, cause error) {
	a.events = append(a.events, event)
	a.causes = append(a.causes, cause)
}

func TestEmitAlertsOnDegradation(t *testing.T) {
	rec := NewRecorder()
	rec.FailTimes(5, errors.New("broker unavailable"))
	alerter := &recordingAlerter{}
	emitter := NewEmitter(rec, 2, time.Millisecond, logger.NewNoOpLogger(), nil).WithAlerter(alerter)

	event := testEvent()
	_ = emitter.Emit(context.Background(), event)

	require.Len(t, alerter.events, 1)
	assert.Equal(t, event.ID, alerter.events[0].ID)
	require.Len(t, alerter.causes, 1)
	assert.EqualError(t, alerter.causes[0], "broker unavailable")
}

func TestEmitSurvivesCancelledRequestContext(t *testing.T) {
	rec := NewRecorder()
	emitter := NewEmitter(rec, 1, time.Millisecond, logger.NewNoOpLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := emitter.Emit(ctx, testEvent())
	require.NoError(t, err, "client disconnect must not break publication")
	assert.Len(t, rec.Events(), 1)
}
