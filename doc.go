// Package concord is the composition root for Concord.
//
// Concord coordinates concurrent edits to a shared hierarchical document
// (a proof tree) made by several devices that reconnect only now and then.
// Every edit is an operation stamped with a vector clock. The coordination
// service in pkg/core orders operations causally, transforms the ones that
// commute and turns the rest into conflicts with resolution options.
//
// Packages:
//
//   - **core**: vector clocks, operations, conflicts and the coordination service.
//   - **payload**: transformable payloads and their JSON envelope.
//   - **oplog**: operation logs on disk (JSON, YAML, NDJSON).
//   - **replica**: a participant that issues and integrates operations.
//   - **adapters/fs**: a watched inbox directory of operation logs.
//   - **adapters/lifecycle**: replica events as a lifecycle source.
//
// Usage:
//
//	alice, err := concord.NewReplica("alice", concord.WithLogger(logger))
//
//	// Author an edit
//	op, err := alice.Issue(ctx, core.OpCreateStatement, "/proof/s1", payload.Value{Content: "P"})
//
//	// Integrate edits written by another device
//	report, err := concord.Replay(ctx, alice, "bob.json")
package concord
