package main

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	for _, sc := range scenarios() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			require.NoError(t, sc.run(context.Background(), 6))
		})
	}
}

func TestExpectAmount(t *testing.T) {
	require.NoError(t, expectAmount(big.NewInt(3), 3, "x"))
	require.Error(t, expectAmount(big.NewInt(2), 3, "x"))
	require.Error(t, expectAmount(nil, 0, "x"))
}
