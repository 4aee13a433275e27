package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanMutate(t *testing.T) {
	tests := []struct {
		name    string
		history []Message
		target  Message
		actor   string
		want    bool
	}{
		{
			name:    "last message by the actor",
			history: []Message{{ID: 1, Sender: "alice"}, {ID: 2, Sender: "alice"}},
			target:  Message{ID: 2, Sender: "alice"},
			actor:   "alice",
			want:    true,
		},
		{
			name: "earlier message inside the actor's trailing run",
			history: []Message{{ID: 1, Sender: "bob"}, {ID: 2, Sender: "alice"},
				{ID: 3, Sender: "alice"}},
			target: Message{ID: 2, Sender: "alice"},
			actor:  "alice",
			want:   true,
		},
		{
			name:    "another participant posted after the target",
			history: []Message{{ID: 1, Sender: "alice"}, {ID: 2, Sender: "bob"}},
			target:  Message{ID: 1, Sender: "alice"},
			actor:   "alice",
			want:    false,
		},
		{
			name:    "actor is not the sender",
			history: []Message{{ID: 1, Sender: "alice"}},
			target:  Message{ID: 1, Sender: "alice"},
			actor:   "bob",
			want:    false,
		},
		{
			name: "run broken in the middle",
			history: []Message{{ID: 1, Sender: "alice"}, {ID: 2, Sender: "bob"},
				{ID: 3, Sender: "alice"}},
			target: Message{ID: 1, Sender: "alice"},
			actor:  "alice",
			want:   false,
		},
		{
			name: "messages before the target do not matter",
			history: []Message{{ID: 1, Sender: "bob"}, {ID: 2, Sender: "bob"},
				{ID: 3, Sender: "alice"}},
			target: Message{ID: 3, Sender: "alice"},
			actor:  "alice",
			want:   true,
		},
		{
			name:    "only message in the room",
			history: []Message{{ID: 1, Sender: "alice"}},
			target:  Message{ID: 1, Sender: "alice"},
			actor:   "alice",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanMutate(tt.history, tt.target, tt.actor))
		})
	}
}
