package ason_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/ason"
	"github.com/aretw0/ason/pkg/capability"
	"github.com/aretw0/ason/pkg/operator"
	"github.com/aretw0/ason/pkg/ports"
)

type inventory struct {
	stock map[string]int
}

// ExampleNew drives a small in-memory application with a canned generator.
// In production the generator is a language model (see pkg/adapters/gemini).
func ExampleNew() {
	// 1. The live object and the operator tree that exposes it
	inv := &inventory{stock: map[string]int{"apples": 3, "pears": 4}}
	tree := operator.NewTree("Inventory", inv)

	// 2. What scripts may call on it
	types := capability.Declare("Inventory", "Warehouse stock").
		Method("Count", func(n *operator.Node, item string) int {
			return n.Object().(*inventory).stock[item]
		}, capability.Params("item"))

	// 3. A generator that always writes the same script
	gen := ports.GeneratorFunc(func(ctx context.Context, p ports.Prompt) (string, error) {
		return `return Root.Count("apples") + Root.Count("pears")`, nil
	})

	client, err := ason.New(tree, gen, ason.WithCapabilities(types))
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close(context.Background())

	reply, err := client.Send(context.Background(), "How many fruits are in stock?")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(reply)
	// Output: 7
}

// ExampleClient_ExecuteScript runs a script without a generator.
func ExampleClient_ExecuteScript() {
	tree := operator.NewTree("Inventory", &inventory{stock: map[string]int{"apples": 3}})
	client, err := ason.New(tree, ports.GeneratorFunc(func(context.Context, ports.Prompt) (string, error) {
		return "", fmt.Errorf("unused")
	}), ason.WithCapabilities(
		capability.Declare("Inventory", "Warehouse stock").
			Method("Count", func(n *operator.Node, item string) int {
				return n.Object().(*inventory).stock[item]
			}, capability.Params("item")),
	))
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close(context.Background())

	out, err := client.ExecuteScript(context.Background(), `
n := Root.Count("apples")
return strings.Repeat("🍎", n)`, true)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(out)
	// Output: 🍎🍎🍎
}
