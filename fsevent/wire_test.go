package fsevent_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wix/reactive-fs/fsevent"
)

func TestMarshal(t *testing.T) {
	t.Parallel()

	name, data, err := fsevent.Marshal(fsevent.FileChangedEvent{
		Path:       "notes/today.md",
		NewContent: "updated",
	})
	require.NoError(t, err)
	assert.Equal(t, "fileChanged", name)
	assert.JSONEq(t, `{"path":"notes/today.md","newContent":"updated"}`, string(data))
}

func TestUnmarshal(t *testing.T) {
	t.Parallel()

	t.Run("RoundTripsEveryVariant", func(t *testing.T) {
		t.Parallel()
		events := []fsevent.Event{
			fsevent.FileCreatedEvent{Path: "a", Content: "x"},
			fsevent.FileChangedEvent{Path: "a", NewContent: "y"},
			fsevent.FileDeletedEvent{Path: "a"},
			fsevent.DirectoryCreatedEvent{Path: "d"},
			fsevent.DirectoryDeletedEvent{Path: "d"},
			fsevent.UnexpectedErrorEvent{Detail: "sync failed"},
		}
		for _, ev := range events {
			name, data, err := fsevent.Marshal(ev)
			require.NoError(t, err)

			decoded, err := fsevent.Unmarshal(name, data)
			require.NoError(t, err)
			assert.Equal(t, ev, decoded)
		}
	})

	t.Run("UnknownNameFails", func(t *testing.T) {
		t.Parallel()
		_, err := fsevent.Unmarshal("fileRenamed", json.RawMessage(`{}`))
		assert.ErrorContains(t, err, "fileRenamed")
	})

	t.Run("MalformedPayloadFails", func(t *testing.T) {
		t.Parallel()
		_, err := fsevent.Unmarshal(fsevent.FileCreated, json.RawMessage(`{"path":`))
		assert.Error(t, err)
	})
}
