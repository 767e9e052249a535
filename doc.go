/*
Package gthread provides the thread tree of a real-time audio engine.

Threads

A thread is a Node. Started nodes own a goroutine which runs the loop: on
every iteration it starts queued children, calls the Runner and runs
SingleLoop children inline. The loop is throttled to the thread frequency,
250 Hz by default. A runner stops its thread gracefully by returning
io.EOF; any other error or a panic stops it with a fault, available with
Err.

Tree

Nodes form a tree with AddChild and RemoveChild. A parent exclusively owns
the list of its children, siblings are a view into that list. Tree
mutations hold the parent's re-entrant lock, never the child's, and the
caller must not hold the child's lock when it's removed. Misuse of the tree
is never applied: release builds log a warning and return a
StructuralError, builds with the gthreaddebug tag panic.

    main := gthread.New()
    audio := gthread.New(gthread.WithRunner(render), gthread.WithRealtime(50))
    _ = main.AddChild(audio, true, true)

Barrier

Every node has three independent wait phases. A node enters phase p with
Wait and stays blocked until a coordinator calls SetSyncAll for a subtree
containing the node. IsTreeReady tells the coordinator if anybody is still
waiting in the phase. Effects of the releasing goroutine before SetSyncAll
are visible to released nodes.

There are no timeouts on waits. A coordinator which never releases a phase
leaves its waiters blocked until their threads are stopped.
*/
package gthread
