package chain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gurpartap/promptchain/chain"
	"github.com/Gurpartap/promptchain/contextwindow"
	"github.com/Gurpartap/promptchain/policy/costroute"
	statestoreinmem "github.com/Gurpartap/promptchain/statestore/inmem"
	telemetryinmem "github.com/Gurpartap/promptchain/telemetry/inmem"
)

var (
	premiumTier  = chain.ModelTier{Name: "premium", Model: "big", InputPricePer1K: 1, OutputPricePer1K: 2}
	standardTier = chain.ModelTier{Name: "standard", Model: "small", InputPricePer1K: 0.1, OutputPricePer1K: 0.2}
)

type fixture struct {
	runner   *chain.Runner
	store    *statestoreinmem.Store
	window   *contextwindow.Window
	recorder *telemetryinmem.Recorder
}

func newFixture(t *testing.T, generator chain.Generator) fixture {
	t.Helper()

	router, err := costroute.New(costroute.Config{Premium: premiumTier, Standard: standardTier})
	require.NoError(t, err)
	f := fixture{
		store:    statestoreinmem.New(),
		window:   contextwindow.New(1000),
		recorder: telemetryinmem.New(),
	}
	f.runner, err = chain.NewRunner(chain.Dependencies{
		Generator: generator,
		Router:    router,
		Store:     f.store,
		Window:    f.window,
		Telemetry: f.recorder,
	})
	require.NoError(t, err)
	return f
}
