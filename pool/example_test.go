package pool_test

import (
	"context"
	"fmt"

	"github.com/dudk/gthread/pool"
)

func Example() {
	p := pool.New(pool.WithMaxThreads(4), pool.WithMaxUnusedThreads(2))
	if err := p.Start(); err != nil {
		fmt.Println(err)
		return
	}
	defer p.Close()

	r, err := p.Pull(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	err = <-r.Execute(func(context.Context) error {
		fmt.Println("rendering")
		return nil
	})
	fmt.Println(err)
	fmt.Println(p.Stats().Reservoir)
	// Output:
	// rendering
	// <nil>
	// 2
}
