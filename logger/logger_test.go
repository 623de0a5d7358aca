// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyValuePairsToFields(t *testing.T) {
	t.Run("pairs become fields", func(t *testing.T) {
		fields := keyValuePairsToFields([]any{"content_key", "abc", "entries", 3})
		require.Len(t, fields, 2)
		assert.Equal(t, "content_key", fields[0].Key)
		assert.Equal(t, "entries", fields[1].Key)
	})

	t.Run("non string keys are skipped", func(t *testing.T) {
		fields := keyValuePairsToFields([]any{42, "value", "ok", true})
		require.Len(t, fields, 1)
		assert.Equal(t, "ok", fields[0].Key)
	})

	t.Run("dangling key is ignored", func(t *testing.T) {
		fields := keyValuePairsToFields([]any{"error"})
		assert.Empty(t, fields)
	})

	t.Run("errors are logged by message", func(t *testing.T) {
		fields := keyValuePairsToFields([]any{"error", errors.New("boom")})
		require.Len(t, fields, 1)
		assert.Equal(t, "error", fields[0].Key)
	})
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Debug("debug", "k", "v")
	l.Error("error", "error", errors.New("boom"))
	assert.NoError(t, l.Flush())
}
