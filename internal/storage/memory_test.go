package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Save(ctx, "attachments/agenda.pdf", strings.NewReader("%PDF-1.4")))

	data, err := Load(ctx, m, "attachments/agenda.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, m.Delete(ctx, "attachments/agenda.pdf"))

	_, err = Load(ctx, m, "attachments/agenda.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
