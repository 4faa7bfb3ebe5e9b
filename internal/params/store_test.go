package params

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayAndAllowList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	s, err := New(path, map[string]string{
		"entry_amount_usdt": "100",
		"entry_leverage":    "5",
		"bogus_default":     "ignored",
	})
	require.NoError(t, err)

	all := s.GetAll()
	assert.Equal(t, "100", all["entry_amount_usdt"])
	assert.NotContains(t, all, "bogus_default", "non-allow-listed defaults are dropped")

	accepted, err := s.Set(map[string]string{
		"entry_amount_usdt": "250",
		"not_a_real_key":    "1",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"entry_amount_usdt": "250"}, accepted)

	v, ok := s.Get("entry_amount_usdt")
	require.True(t, ok)
	assert.Equal(t, "250", v)

	// Default remains visible where no override exists.
	v, ok = s.Get("entry_leverage")
	require.True(t, ok)
	assert.Equal(t, "5", v)
}

func TestOverridesSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")

	s, err := New(path, map[string]string{"entry_amount_usdt": "100"})
	require.NoError(t, err)
	_, err = s.Set(map[string]string{"entry_amount_usdt": "333", "policy_confirm_n": "5"})
	require.NoError(t, err)

	reloaded, err := New(path, map[string]string{"entry_amount_usdt": "100"})
	require.NoError(t, err)
	v, _ := reloaded.Get("entry_amount_usdt")
	assert.Equal(t, "333", v)
	v, _ = reloaded.Get("policy_confirm_n")
	assert.Equal(t, "5", v)
}

func TestSubscribersSeeNewValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	s, err := New(path, map[string]string{"entry_amount_usdt": "100"})
	require.NoError(t, err)

	var got map[string]string
	s.Subscribe(func(effective map[string]string) {
		got = effective
	})

	_, err = s.Set(map[string]string{"entry_amount_usdt": "200"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "200", got["entry_amount_usdt"])

	// An all-unknown patch is a no-op and does not notify.
	got = nil
	_, err = s.Set(map[string]string{"junk": "1"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTypedAccessors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	s, err := New(path, map[string]string{
		"entry_amount_usdt":    "12.5",
		"policy_confirm_n":     "4",
		"adaptive_enabled":     "true",
		"monitor_interval_sec": "20",
	})
	require.NoError(t, err)

	assert.Equal(t, 12.5, s.Float("entry_amount_usdt", 0))
	assert.Equal(t, 4, s.Int("policy_confirm_n", 0))
	assert.True(t, s.Bool("adaptive_enabled", false))
	assert.Equal(t, 20*time.Second, s.Duration("monitor_interval_sec", time.Second))

	// Fallbacks on missing keys and bad values.
	assert.Equal(t, 9.0, s.Float("roi_floor_scale", 9.0))
	assert.Equal(t, 7, s.Int("max_open_positions", 7))
	_, err = s.Set(map[string]string{"policy_confirm_n": "banana"})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Int("policy_confirm_n", 3))
}
