/*
Package pool provides an elastic pool of returnable threads.

A returnable thread executes one task at a time and puts itself back into
the pool when the task is done. Consumers pull threads from the pool
instead of creating them, so there is no thread creation on the hot path:

    p := pool.New(pool.WithParent(main))
    if err := p.Start(); err != nil {
        return err
    }
    defer p.Close()

    r, err := p.Pull(ctx)
    if err != nil {
        return err
    }
    err = <-r.Execute(task)

The pool keeps up to MaxUnusedThreads idle threads in a reservoir, refilled
by its own creation thread when occupancy drops below a half, and never
holds more than MaxThreads threads in total. Pull blocks while the pool is
exhausted.

A task which panics leaves its thread in an unknown state. Such thread is
never returned: it's stopped, detached and replaced by a new one.
*/
package pool
