package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shakil5281/HrHub-sub001/internal/app"
	_ "github.com/shakil5281/HrHub-sub001/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
