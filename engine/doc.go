// Copyright (c) Hustler Authors.
// Licensed under the MIT License.

/*
Package engine implements the hustler orchestration core: a graph of tasks
passing evolving state along named routes, driven by a FIFO scheduler.

Core types:

  - Station: immutable state envelope {capital, change, lineage};
    Fork produces an independent copy of the branch-local change while
    sharing capital by reference
  - Task: unit of work that validates, executes under a retry policy,
    delivers, and routes; linked to successors via a named route table
  - Move: routing intent {route, optional payload} emitted during delivery
  - Hustle: the scheduler; walks the task graph breadth-first from an
    entry task until its queue empties

Execution is strictly sequential: one cooperative queue, no parallel
dispatch. Capital is the single object shared across all branches of a run
and relies on that serialization; no locking is performed.
*/
package engine
