package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	if f.err != nil {
		return f.err
	}
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{EventSettlementFailed}, slog.Default())

	require.NoError(t, n.Notify(context.Background(), EventMatchSettled, "settled", "ok"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), EventSettlementFailed, "failed", "bad"))
	assert.Equal(t, []string{"failed"}, s.titles)
}

func TestNotifyEmptyFilterPassesAll(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, slog.Default())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, s.titles, 1)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("webhook down")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: webhook down")
	assert.Len(t, good.titles, 1)
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{EventEscrowAnomaly}, slog.Default())

	require.NoError(t, n.NotifyAll(context.Background(), "t", "m"))
	assert.Len(t, s.titles, 1)
}

func TestNotifierNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, slog.Default())
	require.NoError(t, n.Notify(context.Background(), EventMatchSettled, "t", "m"))
}
