/*
Package workers sizes and runs bounded worker pools.

# Sizing

Worker counts are derived from runtime.GOMAXPROCS, which Go 1.19+ sets from the
container CPU limit, instead of runtime.NumCPU, which reports host CPUs:

	n := workers.ForIO(8)  // 2 per CPU, at most 8
	n := workers.ForCPU(4) // 1 per CPU, at most 4

Operators can pin the count with the SCAN_WORKERS environment variable. The limit
passed by the caller still caps the override.

# Ordered Map

Map fans a slice out to n workers over a jobs channel and collects the results
back into input order:

	descs, err := workers.Map(ctx, n, entries, func(ctx context.Context, e Entry) (string, error) {
	    return describe(e), nil
	})

The first error cancels the remaining jobs and is returned. Jobs not yet started
when ctx is cancelled are skipped and ctx.Err() is returned.
*/
package workers
