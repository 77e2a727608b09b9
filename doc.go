/*
Package ason lets an application be driven by generated scripts.

The host registers the types of its live objects (operators) and their
methods. Ason renders those declarations into a typed script surface, asks a
generator (typically a language model) for a short Go script that performs a
task, validates it, runs it in a yaegi sandbox and feeds any failure back to
the generator until the script works or the attempts run out.

# Concept

Scripts never touch application objects directly. Each call in a script goes
through the bridge as an invocation addressed by handle, and the dispatcher
resolves the handle in the operator tree, coerces the arguments and invokes
the registered method, optionally on the host's UI goroutine. This keeps the
same script valid whether it runs in-process, in a child process, in a
container or on a remote hub.

# Usage

	tree := operator.NewTree("MainWindow", window)

	client, err := ason.New(tree, generator,
		ason.WithCapabilities(
			capability.Declare("MainWindow", "Main window").
				Method("OpenSales", openSales, capability.Opens("SalesView")),
			capability.Declare("SalesView", "Sales figures").
				Method("Total", total, capability.Params("region")),
		),
		ason.WithMode(domain.ModeProcess),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close(context.Background())

	reply, err := client.Send(ctx, "What is the total for the north region?")

# Execution modes

  - domain.ModeInProcess: the sandbox runs inside the host process.
  - domain.ModeProcess: the ason-executor binary runs as a child process.
  - domain.ModeContainer: the executor runs in a container (docker run -i).
  - WithRemote: sessions are hosted by an ason hub (ason serve).
*/
package ason
