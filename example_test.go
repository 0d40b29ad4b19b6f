package concord_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/concord"
	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/payload"
)

// Example_basic shows two replicas exchanging operations and settling a
// concurrent edit of the same argument.
func Example_basic() {
	ctx := context.Background()

	alice, err := concord.NewReplica("alice")
	if err != nil {
		log.Fatal(err)
	}
	defer alice.Close()
	bob, err := concord.NewReplica("bob")
	if err != nil {
		log.Fatal(err)
	}
	defer bob.Close()

	// 1. Alice creates an argument and bob receives it
	created, err := alice.Issue(ctx, core.OpCreateArgument, "/a1", payload.Value{Content: "P"})
	if err != nil {
		log.Fatal(err)
	}
	if _, err := bob.Receive(ctx, created); err != nil {
		log.Fatal(err)
	}

	// 2. Both edit it while disconnected
	a, err := alice.Issue(ctx, core.OpUpdateArgument, "/a1", payload.Value{Content: "P and Q"})
	if err != nil {
		log.Fatal(err)
	}
	b, err := bob.Issue(ctx, core.OpUpdateArgument, "/a1", payload.Value{Content: "P or Q"})
	if err != nil {
		log.Fatal(err)
	}

	// 3. They exchange edits
	report, err := alice.Receive(ctx, b)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := bob.Receive(ctx, a); err != nil {
		log.Fatal(err)
	}

	// Alice's edit carries the later timestamp and wins on both sides.
	fmt.Println(report.Conflicts[0].Type())
	fmt.Println(alice.Document()["/a1"])
	fmt.Println(alice.Digest() == bob.Digest())
	// Output:
	// SEMANTIC
	// {P and Q}
	// true
}
