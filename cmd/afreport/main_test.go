package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/inventory"
	"github.com/ignite/attribution-monitor/internal/selections"
)

func TestResolveApps(t *testing.T) {
	ctx := context.Background()
	inv := inventory.Static{{AppID: "com.a", AppName: "Alpha"}, {AppID: "com.b", AppName: "Beta"}}
	store := selections.NewMemoryStore()
	require.NoError(t, store.SetActive(ctx, "com.b", false))

	apps, err := resolveApps(ctx, inv, store, nil)
	require.NoError(t, err)
	assert.Equal(t, []appsflyer.App{{AppID: "com.a", AppName: "Alpha"}}, apps)

	apps, err = resolveApps(ctx, inv, store, []string{"com.b", "com.unknown"})
	require.NoError(t, err)
	assert.Equal(t, []appsflyer.App{
		{AppID: "com.b", AppName: "Beta"},
		{AppID: "com.unknown", AppName: "com.unknown"},
	}, apps)
}
