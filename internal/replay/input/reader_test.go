package input

import (
	"errors"
	"strings"
	"testing"

	"github.com/cuongbtq/replay-tools/internal/replay/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		fields        []string
		opts          []Option
		wantItems     [][]string
		wantMalformed int
	}{
		{
			name:      "header and three rows",
			input:     "installation_id\n1\n2\n3\n",
			fields:    []string{"installation_id"},
			wantItems: [][]string{{"1"}, {"2"}, {"3"}},
		},
		{
			name:      "byte order mark before header",
			input:     "\ufeffjiraHost\nfoo.atlassian.net\n",
			fields:    []string{"jiraHost"},
			wantItems: [][]string{{"foo.atlassian.net"}},
		},
		{
			name:      "byte order mark before first value",
			input:     "\ufeff1\n2\n",
			fields:    []string{"installation_id"},
			opts:      []Option{WithValidator("installation_id", Integer)},
			wantItems: [][]string{{"1"}, {"2"}},
		},
		{
			name:      "no header",
			input:     "https://a.atlassian.net\nhttps://b.atlassian.net\n",
			fields:    []string{"jiraHost"},
			wantItems: [][]string{{"https://a.atlassian.net"}, {"https://b.atlassian.net"}},
		},
		{
			name:   "composite key",
			input:  "cloud_id,workspace_uuid\n59fd52f3,{20f0af8c}\nabc,{def}\n",
			fields: []string{"cloud_id", "workspace_uuid"},
			wantItems: [][]string{
				{"59fd52f3", "{20f0af8c}"},
				{"abc", "{def}"},
			},
		},
		{
			name:          "row missing a field is malformed",
			input:         "cloud_id,workspace_uuid\nonly-cloud\nabc,{def}\n",
			fields:        []string{"cloud_id", "workspace_uuid"},
			wantItems:     [][]string{{"abc", "{def}"}},
			wantMalformed: 1,
		},
		{
			name:          "empty value is malformed",
			input:         "a,\nb,c\n",
			fields:        []string{"x", "y"},
			wantItems:     [][]string{{"b", "c"}},
			wantMalformed: 1,
		},
		{
			name:      "extra columns ignored and whitespace trimmed",
			input:     " 10 , extra\n20,more,columns\n",
			fields:    []string{"installation_id"},
			wantItems: [][]string{{"10"}, {"20"}},
		},
		{
			name:          "integer validator rejects text",
			input:         "subscriptionId\n42\nabc\n43\n",
			fields:        []string{"subscriptionId"},
			opts:          []Option{WithValidator("subscriptionId", Integer)},
			wantItems:     [][]string{{"42"}, {"43"}},
			wantMalformed: 1,
		},
		{
			name:      "empty input",
			input:     "",
			fields:    []string{"installation_id"},
			wantItems: nil,
		},
		{
			name:          "bare quote is malformed and reading continues",
			input:         "1\n2\"x\n3\n",
			fields:        []string{"installation_id"},
			wantItems:     [][]string{{"1"}, {"3"}},
			wantMalformed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, malformed, err := Collect(Read(strings.NewReader(tt.input), tt.fields, tt.opts...))
			require.NoError(t, err)

			var got [][]string
			for _, item := range items {
				got = append(got, item.Values())
			}
			assert.Equal(t, tt.wantItems, got)
			assert.Len(t, malformed, tt.wantMalformed)
		})
	}
}

func TestRead_MalformedRowDetails(t *testing.T) {
	seq := Read(strings.NewReader("cloud_id,workspace_uuid\nonly-cloud\n"), []string{"cloud_id", "workspace_uuid"})

	var rowErr *domain.MalformedRowError
	for _, err := range seq {
		require.Error(t, err)
		require.True(t, errors.As(err, &rowErr))
	}

	require.NotNil(t, rowErr)
	assert.Equal(t, 2, rowErr.Line)
	assert.Equal(t, []string{"only-cloud"}, rowErr.Row)
	assert.Contains(t, rowErr.Error(), "expected 2 fields")
}

func TestRead_StopsEarly(t *testing.T) {
	seq := Read(strings.NewReader("1\n2\n3\n"), []string{"installation_id"})

	count := 0
	for range seq {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestRead_IOErrorEndsSequence(t *testing.T) {
	items, malformed, err := Collect(Read(failingReader{}, []string{"installation_id"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Empty(t, items)
	assert.Empty(t, malformed)
}

func TestInteger(t *testing.T) {
	assert.NoError(t, Integer("12345"))
	assert.NoError(t, Integer("-1"))
	assert.Error(t, Integer("12.5"))
	assert.Error(t, Integer("installation"))
}
