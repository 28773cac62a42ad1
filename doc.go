// Package pool implements a generic, keyed, concurrent object pool.
//
// It amortizes the cost of expensive-to-construct objects — database
// connections, network sessions, parser contexts — by keeping them alive
// across uses, partitioned by a caller-supplied key. Each distinct key owns
// an independent sub-pool; callers borrow an instance for a key, use it, and
// return it. The pool enforces per-key and global capacity limits, blocks or
// fails fast when exhausted, validates instances at lifecycle transitions,
// and evicts idle instances in the background.
//
// # Basic usage
//
//	factory := pool.FactoryFuncs[string, net.Conn]{
//		MakeFunc: func(ctx context.Context, key string) (net.Conn, error) {
//			return net.Dial("tcp", key)
//		},
//		DestroyFunc: func(ctx context.Context, key string, conn net.Conn) error {
//			return conn.Close()
//		},
//	}
//
//	p := pool.New[string, net.Conn](factory, pool.DefaultConfig())
//	defer p.Close()
//
//	conn, err := p.Borrow(context.Background(), "example.com:443")
//	if err != nil {
//		// handle exhaustion / closed / factory failure
//	}
//	defer p.Return(context.Background(), "example.com:443", conn)
//
// No user-factory method is invoked while a lock shared with Borrow,
// Return or Invalidate is held; this is the pool's defense against
// deadlocks where factories themselves acquire application locks or
// perform I/O. The evictor holds its own sweep lock, used by nothing
// else, across the factory calls of a sweep.
package pool
