package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_AppendAndList(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	orderID := uuid.New()
	author := uuid.New()

	require.NoError(t, l.Append(ctx, Comment{OrderID: orderID, AccountID: author, Text: "first", Channel: ChannelAdmin}))
	require.NoError(t, l.Append(ctx, Comment{OrderID: orderID, AccountID: author, Text: "second", Channel: ChannelCustomer}))
	require.NoError(t, l.Append(ctx, Comment{OrderID: uuid.New(), Text: "other order", Channel: ChannelAdmin}))

	got, err := l.List(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, ChannelCustomer, got[1].Channel)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestMemoryLedger_RejectsUnknownChannel(t *testing.T) {
	err := NewMemoryLedger().Append(context.Background(), Comment{OrderID: uuid.New(), Text: "x", Channel: "public"})
	assert.True(t, errors.Is(err, ErrInvalidChannel))
}
