package main

import (
	"testing"
	"time"

	"github.com/tj/assert"

	"github.com/mcdev12/livepoll/go/internal/models"
)

func TestParsePoll(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    pollRequest
		wantErr bool
	}{
		{
			name:  "with duration and correct option",
			input: "2+2? | 4*, 5 | 45s",
			want: pollRequest{
				question: "2+2?",
				options:  []models.Option{{Text: "4", IsCorrect: true}, {Text: "5"}},
				duration: 45 * time.Second,
			},
		},
		{
			name:  "default duration",
			input: "Favourite colour | red, blue, ,green",
			want: pollRequest{
				question: "Favourite colour",
				options:  []models.Option{{Text: "red"}, {Text: "blue"}, {Text: "green"}},
			},
		},
		{name: "missing options", input: "just a question", wantErr: true},
		{name: "empty question", input: " | a, b", wantErr: true},
		{name: "bad duration", input: "q | a, b | soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePoll(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
