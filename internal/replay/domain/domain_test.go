package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkItem_Equality(t *testing.T) {
	tests := []struct {
		name  string
		a     WorkItem
		b     WorkItem
		equal bool
	}{
		{
			name:  "same single field",
			a:     NewWorkItem("12345"),
			b:     NewWorkItem("12345"),
			equal: true,
		},
		{
			name:  "different single field",
			a:     NewWorkItem("12345"),
			b:     NewWorkItem("12346"),
			equal: false,
		},
		{
			name:  "composite key equal",
			a:     NewWorkItem("cloud-1", "{ws-1}"),
			b:     NewWorkItem("cloud-1", "{ws-1}"),
			equal: true,
		},
		{
			name:  "composite key differs in second field",
			a:     NewWorkItem("cloud-1", "{ws-1}"),
			b:     NewWorkItem("cloud-1", "{ws-2}"),
			equal: false,
		},
		{
			name:  "joined values do not collide",
			a:     NewWorkItem("a,b", "c"),
			b:     NewWorkItem("a", "b,c"),
			equal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
		})
	}
}

func TestWorkItem_Immutable(t *testing.T) {
	values := []string{"1", "2"}
	item := NewWorkItem(values...)
	values[0] = "changed"

	got := item.Values()
	got[1] = "changed"

	assert.Equal(t, []string{"1", "2"}, item.Values())
	assert.Equal(t, "1", item.Value(0))
	assert.Equal(t, "", item.Value(5))
	assert.Equal(t, 2, item.Len())
	assert.Equal(t, "(1,2)", item.String())
}

func TestItemSet(t *testing.T) {
	set := ItemSet{}

	assert.True(t, set.Add(NewWorkItem("1")))
	assert.False(t, set.Add(NewWorkItem("1")))
	assert.True(t, set.Contains(NewWorkItem("1")))
	assert.False(t, set.Contains(NewWorkItem("2")))
	assert.Len(t, set, 1)
}

func TestRecord_Row(t *testing.T) {
	rec := Record{Item: NewWorkItem("cloud", "ws"), Status: StatusNotFound}
	assert.Equal(t, []string{"cloud", "ws", "not_found"}, rec.Row())
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusError.Halted())
	assert.False(t, StatusSuccess.Halted())
	assert.False(t, StatusNotFound.Halted())
	assert.True(t, StatusNotFound.Valid())
	assert.False(t, Status("pending").Valid())
}

func TestErrors(t *testing.T) {
	t.Run("halt error unwraps to sentinel and cause", func(t *testing.T) {
		remote := &RemoteError{Endpoint: "resync", StatusCode: 500, Body: "boom"}
		err := error(&HaltError{Batch: 1, Items: []WorkItem{NewWorkItem("1")}, Err: remote})

		assert.True(t, errors.Is(err, ErrHalted))

		var target *RemoteError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, 500, target.StatusCode)
		assert.Contains(t, err.Error(), "HTTP 500")
	})

	t.Run("auth error includes stderr", func(t *testing.T) {
		err := &AuthError{Audience: "github-for-jira", Env: "dev", Stderr: "not logged in", Err: errors.New("exit status 1")}
		assert.Contains(t, err.Error(), "not logged in")
		assert.Contains(t, err.Error(), "exit status 1")
	})

	t.Run("config error formats field", func(t *testing.T) {
		err := NewConfigError("batchsize", "must be greater than 0, got %d", 0)
		var target *ConfigError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, "batchsize", target.Field)
		assert.Equal(t, "config error: batchsize: must be greater than 0, got 0", err.Error())
	})

	t.Run("transport failure has no status code", func(t *testing.T) {
		err := &RemoteError{Endpoint: "configuration", Err: errors.New("connection refused")}
		assert.Contains(t, err.Error(), "connection refused")
	})
}
