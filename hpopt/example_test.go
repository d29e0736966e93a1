package hpopt_test

import (
	"context"
	"fmt"
	"math"

	"github.com/gorgonia/torsk/hpopt"
	"go.uber.org/zap"
)

func ExampleMinimize() {
	space := hpopt.Space{
		{Name: "x", Kind: hpopt.Real, Low: -3, High: 3},
		{Name: "n", Kind: hpopt.Integer, Low: 1, High: 9},
	}
	objective := func(x []float64) float64 {
		return math.Pow(x[0]-1, 2) + math.Abs(x[1]-4)
	}

	conf := hpopt.DefaultConfig()
	conf.Calls = 15
	conf.InitialPoints = 5
	conf.X0 = [][]float64{{0, 5}}
	conf.Logger = zap.NewNop().Sugar()

	res, err := hpopt.Minimize(context.Background(), objective, space, conf)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("evaluations:", len(res.FuncVals))
	fmt.Println("first point:", res.Xs[0])
	fmt.Println("improved on x0:", res.Fun <= res.FuncVals[0])
	// Output:
	// evaluations: 15
	// first point: [0 5]
	// improved on x0: true
}
