package identity

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected Identity
		present  bool
	}{
		{
			name: "full identity",
			headers: map[string]string{
				HeaderUserID:    "u-1",
				HeaderUserName:  "alice",
				HeaderUserEmail: "alice@corp.test",
				HeaderUserRole:  RoleAdmin,
				HeaderUserTeams: "platform, backend ,",
			},
			expected: Identity{
				UserID: "u-1",
				Name:   "alice",
				Email:  "alice@corp.test",
				Role:   RoleAdmin,
				Teams:  []string{"platform", "backend"},
			},
			present: true,
		},
		{
			name:    "role defaults to user",
			headers: map[string]string{HeaderUserID: "u-2"},
			expected: Identity{
				UserID: "u-2",
				Role:   RoleUser,
			},
			present: true,
		},
		{
			name:     "no user id means no identity",
			headers:  map[string]string{HeaderUserName: "ghost"},
			expected: Anonymous(),
			present:  false,
		},
		{
			name:     "blank user id means no identity",
			headers:  map[string]string{HeaderUserID: "   "},
			expected: Anonymous(),
			present:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			id, ok := FromHeaders(h)
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestAuthenticated(t *testing.T) {
	assert.False(t, Anonymous().Authenticated())
	assert.True(t, Identity{UserID: "u-1"}.Authenticated())
}

func TestContextRoundTrip(t *testing.T) {
	id := Identity{UserID: "u-1", Name: "alice"}
	ctx := NewContext(context.Background(), id)

	assert.Equal(t, id, FromContext(ctx))
	assert.Equal(t, Anonymous(), FromContext(context.Background()))
}
