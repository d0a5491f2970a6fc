package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

func strPtr(s string) *string { return &s }

func wifiConfig(id string) config.SwitchConfig {
	return config.SwitchConfig{
		ID:   id,
		Name: "Wi-Fi " + id,
		Icon: "wifi",
		Type: "switch",
		On:   &config.CommandConfig{Command: "networksetup -setairportpower en0 on"},
		Off:  &config.CommandConfig{Command: "networksetup -setairportpower en0 off"},
		Status: &config.CommandConfig{
			Kind:             "sh",
			Command:          "networksetup -getairportpower en0 | grep -c On",
			ExpectedOnOutput: strPtr("1"),
		},
	}
}

func TestBuildItemSwitch(t *testing.T) {
	item, err := BuildItem(wifiConfig("wifi"))
	require.NoError(t, err)

	assert.Equal(t, domain.ControlSwitch, item.ControlType)
	assert.Equal(t, "wifi", item.IconName)
	require.NotNil(t, item.Status)
	assert.Equal(t, domain.RoleStatus, item.Status.Role())
	assert.Equal(t, domain.ExecuteShell, item.Status.Kind())
	expected, ok := item.Status.ExpectedOnOutput()
	assert.True(t, ok)
	assert.Equal(t, "1", expected)
	assert.Equal(t, domain.RoleOn, item.On.Role())
	assert.Equal(t, domain.RoleOff, item.Off.Role())
	assert.Nil(t, item.Single)
}

func TestBuildItemEmptyExpectationIsValid(t *testing.T) {
	sc := wifiConfig("wifi")
	sc.Status.ExpectedOnOutput = strPtr("")
	item, err := BuildItem(sc)
	require.NoError(t, err)
	expected, ok := item.Status.ExpectedOnOutput()
	assert.True(t, ok)
	assert.Empty(t, expected)
}

func TestBuildItemButton(t *testing.T) {
	item, err := BuildItem(config.SwitchConfig{
		ID:     "sleep",
		Name:   "Sleep",
		Type:   "Button",
		Single: &config.CommandConfig{Kind: "applescript", Command: `tell application "System Events" to sleep`},
		// A button ignores a status without expectation.
		Status: &config.CommandConfig{Command: "true"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ControlButton, item.ControlType)
	assert.Equal(t, domain.ExecuteScript, item.Single.Kind())
	assert.Nil(t, item.Status)
}

func TestBuildItemErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.SwitchConfig)
		want   error
	}{
		{"missing expectation", func(sc *config.SwitchConfig) { sc.Status.ExpectedOnOutput = nil }, domain.ErrMissingCommand},
		{"missing status", func(sc *config.SwitchConfig) { sc.Status = nil }, domain.ErrMissingCommand},
		{"unknown type", func(sc *config.SwitchConfig) { sc.Type = "slider" }, domain.ErrInvalidInput},
		{"unknown kind", func(sc *config.SwitchConfig) { sc.On.Kind = "python" }, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := wifiConfig("wifi")
			tt.mutate(&sc)
			_, err := BuildItem(sc)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFromConfigKeepsOrder(t *testing.T) {
	r, err := FromConfig([]config.SwitchConfig{wifiConfig("c"), wifiConfig("a"), wifiConfig("b")})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	items, err := r.List(context.Background())
	require.NoError(t, err)
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestFromConfigDuplicate(t *testing.T) {
	_, err := FromConfig([]config.SwitchConfig{wifiConfig("a"), wifiConfig("a")})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestGetUnknown(t *testing.T) {
	r := New()
	_, err := r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSwitchNotFound)
	assert.Equal(t, domain.CodeSwitchNotFound, domain.ErrorCodeOf(err))
}

func TestReplaceKeepsActiveState(t *testing.T) {
	r, err := FromConfig([]config.SwitchConfig{wifiConfig("a"), wifiConfig("b")})
	require.NoError(t, err)
	a, err := r.Get(context.Background(), "a")
	require.NoError(t, err)
	a.SetActive(true)

	na, err := BuildItem(wifiConfig("a"))
	require.NoError(t, err)
	nc, err := BuildItem(wifiConfig("c"))
	require.NoError(t, err)
	require.NoError(t, r.Replace([]*domain.SwitchItem{nc, na}))

	got, err := r.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Same(t, na, got)
	assert.True(t, got.Active())

	_, err = r.Get(context.Background(), "b")
	assert.ErrorIs(t, err, domain.ErrSwitchNotFound)

	items, _ := r.List(context.Background())
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].ID)
}

func TestReplaceRejectsDuplicates(t *testing.T) {
	r := New()
	a1, _ := BuildItem(wifiConfig("a"))
	a2, _ := BuildItem(wifiConfig("a"))
	err := r.Replace([]*domain.SwitchItem{a1, a2})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.Zero(t, r.Len())
}
