package dap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
)

// ServeListener accepts TCP connections until ctx is done and runs serve for
// each on its own goroutine. It waits for running sessions before returning.
func ServeListener(ctx context.Context, ln net.Listener, serve func(Transport)) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(NewSocketTransport(conn))
		}()
	}
}
