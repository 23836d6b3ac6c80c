package registry

import (
	"regexp"
	"strings"
	"testing"

	"github.com/cwrk-planet/roomcast/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var placeholderRe = regexp.MustCompile(`^User_[0-9a-z]{6}$`)

func TestRegister(t *testing.T) {
	r := New()

	c, err := r.Register("a")
	require.NoError(t, err)
	assert.Equal(t, "a", c.ID)
	assert.Empty(t, c.Room)
	assert.Empty(t, c.DisplayName)
	assert.False(t, c.Joined())

	_, err = r.Register("a")
	require.ErrorIs(t, err, domain.ErrDuplicateConnection)
	assert.Equal(t, 1, r.Len())
}

func TestUnregister(t *testing.T) {
	r := New()
	_, err := r.Register("a")
	require.NoError(t, err)

	require.NoError(t, r.Unregister("a"))
	assert.Equal(t, 0, r.Len())

	// повторный disconnect от транспорта
	err = r.Unregister("a")
	require.ErrorIs(t, err, domain.ErrUnknownConnection)
}

func TestSetRoom(t *testing.T) {
	r := New()
	_, _ = r.Register("a")

	require.NoError(t, r.SetRoom("a", "general"))
	c, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "general", c.Room)

	require.NoError(t, r.SetRoom("a", ""))
	c, _ = r.Get("a")
	assert.False(t, c.Joined())

	require.ErrorIs(t, r.SetRoom("missing", "x"), domain.ErrUnknownConnection)
}

func TestSetDisplayName(t *testing.T) {
	r := New()
	_, _ = r.Register("a")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "trimmed", input: "  alice  ", want: "alice"},
		{name: "exactly twenty", input: strings.Repeat("b", 20), want: strings.Repeat("b", 20)},
		{name: "too long", input: strings.Repeat("c", 21), wantErr: domain.ErrInvalidDisplayName},
		{name: "multibyte counts runes", input: strings.Repeat("я", 20), want: strings.Repeat("я", 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.SetDisplayName("a", tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			c, _ := r.Get("a")
			assert.Equal(t, tt.want, c.DisplayName)
		})
	}
}

func TestSetDisplayName_TooLongKeepsPrevious(t *testing.T) {
	r := New()
	_, _ = r.Register("a")
	_, _ = r.SetDisplayName("a", "bob")

	_, err := r.SetDisplayName("a", strings.Repeat("x", 30))
	require.Error(t, err)

	c, _ := r.Get("a")
	assert.Equal(t, "bob", c.DisplayName)
}

func TestSetDisplayName_Placeholder(t *testing.T) {
	r := New()
	_, _ = r.Register("a")

	for _, in := range []string{"", "   ", "\t\n"} {
		got, err := r.SetDisplayName("a", in)
		require.NoError(t, err)
		assert.Regexp(t, placeholderRe, got)
	}
}

func TestDisplayName_AssignsPlaceholderOnce(t *testing.T) {
	r := New()
	_, _ = r.Register("a")

	first, err := r.DisplayName("a")
	require.NoError(t, err)
	assert.Regexp(t, placeholderRe, first)

	second, err := r.DisplayName("a")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = r.DisplayName("missing")
	require.ErrorIs(t, err, domain.ErrUnknownConnection)
}

func TestEach(t *testing.T) {
	r := New()
	for _, id := range []string{"a", "b", "c"} {
		_, _ = r.Register(id)
	}

	seen := map[string]bool{}
	r.Each(func(c domain.Connection) { seen[c.ID] = true })
	assert.Len(t, seen, 3)
}
