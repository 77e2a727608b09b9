/*
Package capability holds the explicit registration table of operator types and
turns it into the surface a generator writes scripts against.

Host applications declare each operator kind once:

	sales := capability.Declare("SalesView", "Sales dashboard").
		Method("Total", func(n *operator.Node, region string) (float64, error) { ... },
			capability.Describe("Total sales for a region"),
			capability.Params("region"))

The Registry renders two artifacts from the table: an executable Go prelude
(stub types whose methods call back into the host through the bridge package)
and a human-readable signature listing used as generator instructions. External
tool servers are merged in with RegisterToolSet.
*/
package capability
